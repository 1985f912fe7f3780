// Copyright 2021 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

// Command sasctl inspects and manages a storage area store from the
// command line: mounting it against a device profile, dumping its
// records, reading back sector cookies, and wiping it.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "sasctl",
		Usage: "inspect and manage a storage area store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the main device profile (JSON)",
				Value: "/etc/sas/profile.json",
			},
			&cli.StringFlag{
				Name:  "fallback-config",
				Usage: "path to a fallback device profile, applied before --config",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug-level logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			mountCommand,
			dumpCommand,
			cookieCommand,
			wipeCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sasctl:", err)
		os.Exit(1)
	}
}
