// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command covmodel opens a coverage's persisted bricks and runs its
// asynchronous write dispatcher and an in-process worker pool, mirroring the
// teacher's cmd/cc-backend bootstrap split (cli.go parses flags, server.go
// runs the long-lived process, main.go wires the two together).
package main

import (
	"fmt"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/covmodel/internal/config"
	"github.com/google/gops/agent"
)

var version = "development"

func main() {
	cliInit()

	cclog.Init(flagLogLevel, true)

	if flagVersion {
		fmt.Printf("covmodel version %s\n", version)
		return
	}

	if err := config.Init(flagConfigFile); err != nil {
		cclog.Fatalf("loading config: %v", err)
	}

	// See https://github.com/google/gops (runtime overhead is almost zero)
	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if !flagServer {
		fmt.Println("nothing to do: pass -server to run the dispatcher and worker pool")
		return
	}

	if err := runServer(flagStoreRoot, flagCoverageID, flagWorkers); err != nil {
		cclog.Errorf("server exited with error: %v", err)
		os.Exit(1)
	}
}
