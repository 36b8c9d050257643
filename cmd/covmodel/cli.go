// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var (
	flagServer, flagVersion, flagGops             bool
	flagConfigFile, flagStoreRoot, flagCoverageID string
	flagWorkers                                   int
	flagLogLevel                                  string
)

func cliInit() {
	flag.BoolVar(&flagServer, "server", false, "Open the coverage store and run the dispatcher/worker pool until signaled to stop")
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Specify alternative path to `config.json`")
	flag.StringVar(&flagStoreRoot, "store", "./var/coverage", "Root directory the coverage's bricks and manifest are written under")
	flag.StringVar(&flagCoverageID, "coverage", "default", "Coverage identifier; selects or creates `<store>/<coverage>_master.json`")
	flag.IntVar(&flagWorkers, "workers", 2, "Number of in-process workers to start against the embedded dispatcher")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.Parse()
}
