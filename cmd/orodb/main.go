/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command orodb is the migration runner CLI: scaffold, apply, reverse, and
// inspect SQL migrations against a configured database.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/tomoncle/orodb/cli"
	"github.com/tomoncle/orodb/database"
	"github.com/tomoncle/orodb/utils"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	c, err := cli.New(version)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitError
	}

	if err := c.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitError
	}

	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	noColor := c.NoColor || !tty
	if noColor {
		color.NoColor = true
		utils.SetNoColor(true)
	}

	utils.ConfigureLogLevel(c.LogLevel)
	logger := database.GetLogger()

	appCtx := &cli.Context{
		Logger:  logger,
		Stdout:  colorable.NewColorableStdout(),
		NoColor: noColor,
	}

	if err := c.Execute(appCtx); err != nil {
		logger.Error("Command failed", "error", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}
