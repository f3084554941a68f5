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
	"os"

	"github.com/Comcast/elementary/tools"

	"github.com/spf13/cobra"
)

var docOpts struct {
	out string
	css []string
}

var docCmd = &cobra.Command{
	Use:   "doc APP",
	Short: "Render an app as HTML",
	Args:  cobra.ExactArgs(1),
	RunE:  docApp,
}

func init() {
	docCmd.Flags().StringVarP(&docOpts.out, "out", "o", "", "output file (default stdout)")
	docCmd.Flags().StringSliceVar(&docOpts.css, "css", nil, "stylesheet URLs")
}

func docApp(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if docOpts.out != "" {
		f, err := os.Create(docOpts.out)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return tools.ReadAndRenderAppPage(args[0], docOpts.css, out)
}
