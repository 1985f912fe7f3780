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

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/mendersoftware/sas/conf"
	"github.com/mendersoftware/sas/sas"
)

func loadProfile(c *cli.Context) (conf.Profile, error) {
	return conf.LoadProfile(c.String("config"), c.String("fallback-config"))
}

var mountCommand = &cli.Command{
	Name:  "mount",
	Usage: "mount the store and print its mode and sector geometry",
	Action: func(c *cli.Context) error {
		p, err := loadProfile(c)
		if err != nil {
			return err
		}
		store, err := p.Open()
		if err != nil {
			return err
		}
		defer store.Unmount()

		fmt.Printf("mode:         %s\n", store.Mode())
		fmt.Printf("sector size:  %s\n", humanize.Bytes(uint64(p.SectorSize)))
		fmt.Printf("sector count: %d\n", p.SectorCount)
		return nil
	},
}

var dumpCommand = &cli.Command{
	Name:  "dump",
	Usage: "list every live record in write order",
	Action: func(c *cli.Context) error {
		p, err := loadProfile(c)
		if err != nil {
			return err
		}
		store, err := p.Open()
		if err != nil {
			return err
		}
		defer store.Unmount()

		var h sas.RecordHandle
		count := 0
		for {
			next, err := store.RecordNext(h)
			if err != nil {
				break
			}
			ok, verr := next.Validate()
			status := "ok"
			if verr != nil || !ok {
				status = "CORRUPT"
			}
			fmt.Printf("#%-4d sector=%-3d loc=%-6d size=%-6s %s\n",
				count, next.Sector, next.Loc, humanize.Bytes(uint64(next.Size)), status)
			h = next
			count++
		}
		fmt.Printf("%d record(s)\n", count)
		return nil
	},
}

var cookieCommand = &cli.Command{
	Name:      "cookie",
	Usage:     "print the cookie stored at the start of a sector",
	ArgsUsage: "<sector>",
	Action: func(c *cli.Context) error {
		sec := c.Args().First()
		if sec == "" {
			return cli.Exit("cookie: sector argument required", 1)
		}
		p, err := loadProfile(c)
		if err != nil {
			return err
		}
		store, err := p.Open()
		if err != nil {
			return err
		}
		defer store.Unmount()

		var idx int
		if _, err := fmt.Sscanf(sec, "%d", &idx); err != nil {
			return cli.Exit(fmt.Sprintf("cookie: invalid sector %q", sec), 1)
		}
		cookie, err := store.GetSectorCookie(idx)
		if err != nil {
			return err
		}
		fmt.Printf("%x\n", cookie)
		return nil
	},
}

var wipeCommand = &cli.Command{
	Name:  "wipe",
	Usage: "erase every sector and discard all records",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Usage: "skip the confirmation prompt"},
	},
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			return cli.Exit("wipe: pass --yes to confirm destroying all records", 1)
		}
		p, err := loadProfile(c)
		if err != nil {
			return err
		}
		store, err := p.Open()
		if err != nil {
			return err
		}
		defer store.Unmount()

		if err := store.Wipe(); err != nil {
			return err
		}
		fmt.Println("store wiped")
		return nil
	},
}
