/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"

	"github.com/Comcast/elementary/app"
	"github.com/Comcast/elementary/sio"
	"github.com/Comcast/elementary/tools"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check APP...",
	Short: "Analyze apps",
	Long: `Prints an analysis of each app.  Exits with an error if any app has
messages without updates, commands that refer to missing encoders, or
commands for effects that aren't configured.`,
	Args: cobra.MinimumNArgs(1),
	RunE: checkApps,
}

func checkApps(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, filename := range args {
		a, err := app.ReadFile(filename)
		if err != nil {
			logger.Error("read", zap.String("app", filename), zap.Error(err))
			failed++
			continue
		}
		x, err := tools.Analyze(a)
		if err != nil {
			logger.Error("analyze", zap.String("app", filename), zap.Error(err))
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", filename, sio.JSON(x))
		if !x.OK() {
			failed++
		}
	}
	if 0 < failed {
		return fmt.Errorf("%d of %d apps failed", failed, len(args))
	}
	return nil
}
