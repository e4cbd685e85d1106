package formats

// Entry is one row of the compatibility table.
type Entry struct {
	Source  MediaType `json:"source"`
	Family  string    `json:"family"`
	Targets []string  `json:"targets"`
}

var table = []Entry{
	{Source: JPEG, Targets: []string{".png", ".webp", ".jpg", ".svg", ".pdf"}},
	{Source: PNG, Targets: []string{".jpg", ".webp", ".png", ".svg", ".pdf"}},
	{Source: WebP, Targets: []string{".jpg", ".png", ".webp", ".svg", ".pdf"}},
	{Source: GIF, Targets: []string{".jpg", ".png", ".webp", ".svg", ".pdf"}},
	{Source: SVG, Targets: []string{".png", ".jpg", ".webp", ".pdf"}},
	{Source: MP4, Targets: []string{".webm", ".gif", ".mov"}},
	{Source: WebM, Targets: []string{".mp4", ".gif", ".mov"}},
	{Source: QuickTime, Targets: []string{".mp4", ".webm", ".gif"}},
	{Source: MP3, Targets: []string{".wav", ".ogg", ".m4a"}},
	{Source: WAV, Targets: []string{".mp3", ".ogg", ".m4a"}},
	{Source: OGG, Targets: []string{".mp3", ".wav", ".m4a"}},
	{Source: PDF, Targets: []string{".docx", ".md", ".txt", ".jpg", ".png"}},
	{Source: DOCX, Targets: []string{".pdf", ".md", ".txt"}},
	{Source: Markdown, Targets: []string{".pdf", ".docx", ".txt"}},
	{Source: PlainText, Targets: []string{".pdf", ".docx", ".md"}},
}

var tableIndex = func() map[MediaType]int {
	m := make(map[MediaType]int, len(table))
	for i, e := range table {
		m[e.Source] = i
	}
	return m
}()

// AllowedTargets returns the ordered target extensions for mt. An unknown
// media type yields an empty list. The returned slice is a copy.
func AllowedTargets(mt MediaType) []string {
	i, ok := tableIndex[mt]
	if !ok {
		return []string{}
	}
	out := make([]string, len(table[i].Targets))
	copy(out, table[i].Targets)
	return out
}

// Supported reports whether mt has a row in the table.
func Supported(mt MediaType) bool {
	_, ok := tableIndex[mt]
	return ok
}

// Allows reports whether target is listed for mt.
func Allows(mt MediaType, target string) bool {
	target = NormalizeExt(target)
	i, ok := tableIndex[mt]
	if !ok || target == "" {
		return false
	}
	for _, t := range table[i].Targets {
		if t == target {
			return true
		}
	}
	return false
}

// Table returns every row in declaration order.
func Table() []Entry {
	out := make([]Entry, 0, len(table))
	for _, e := range table {
		targets := make([]string, len(e.Targets))
		copy(targets, e.Targets)
		out = append(out, Entry{Source: e.Source, Family: FamilyOf(e.Source).String(), Targets: targets})
	}
	return out
}
