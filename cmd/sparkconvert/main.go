package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "sparkconvert",
		Usage: "convert images, audio, video and documents on this machine",
		Description: "Every setting can also come from the environment " +
			"(SPARK_OUTPUT_DIR, SPARK_DB_PATH, SPARK_COMPRESSION, ...). " +
			"Flags win over the environment.",
		Commands: []*cli.Command{
			convertCommand(),
			serveCommand(),
			formatsCommand(),
			statsCommand(),
			historyCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
