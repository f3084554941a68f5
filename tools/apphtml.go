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

package tools

import (
	"fmt"
	"html"
	"io"

	"github.com/Comcast/elementary/app"
	"github.com/Comcast/elementary/core"
	"github.com/Comcast/elementary/sio"

	md "github.com/russross/blackfriday/v2"
)

// RenderAppHTML writes an HTML fragment that documents the app.
//
// The app's doc is Markdown.  Decoders appear in precedence order.
// Other sections are ordered by name.
func RenderAppHTML(a *app.App, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}
	code := func(x interface{}) string {
		return html.EscapeString(sio.JSON(x))
	}

	if a.Doc != "" {
		f(`<div class="appDoc doc">%s</div>`, md.Run([]byte(a.Doc)))
	}

	if a.Init.Model != nil || a.Init.Cmds != nil {
		f(`<h2>init</h2>`)
		f(`<div class="init code"><pre>%s</pre></div>`, code(a.Init))
	}

	if len(a.Decoders) > 0 {
		f(`<h2>decoders</h2>`)
		f(`<div class="decoders"><table>`)
		for _, g := range a.Decoders {
			for i, d := range g.Decoders {
				f(`<tr class="decoder"><td><span class="effectName">%s</span></td><td>%d</td>`, html.EscapeString(g.Name), i)
				f(`<td><a href="#update-%s"><span class="messageName">%s</span></a></td>`, d.Message, html.EscapeString(d.Message))
				f(`<td><div class="code"><pre>%s</pre></div></td></tr>`, code(d.Pattern))
			}
		}
		f(`</table></div>`)
	}

	section := func(title, class string, m map[string]interface{}) {
		if len(m) == 0 {
			return
		}
		f(`<h2>%s</h2>`, title)
		f(`<div class="%s"><table>`, class)
		for _, name := range core.Keys(m) {
			f(`<tr><td><span id="%s-%s" class="name">%s</span></td>`, title, name, html.EscapeString(name))
			f(`<td><div class="code"><pre>%s</pre></div></td></tr>`, code(m[name]))
		}
		f(`</table></div>`)
	}

	section("update", "updates", a.Update)
	section("encoders", "encoders", a.Encoders)
	section("views", "views", a.Views)

	if len(a.Effects) > 0 {
		effects := make(map[string]interface{}, len(a.Effects))
		for name, conf := range a.Effects {
			var settings interface{}
			if conf != nil {
				settings = conf.Settings
			}
			effects[name] = settings
		}
		section("effects", "effects", effects)
	}

	section("settings", "settings", a.Settings)

	return nil
}

// RenderAppPage writes a complete HTML page that documents the app
// and includes its analysis.
func RenderAppPage(a *app.App, out io.Writer, cssFiles []string) error {
	if cssFiles == nil {
		cssFiles = []string{"/static/app-html.css"}
	}

	x, err := Analyze(a)
	if err != nil {
		return err
	}

	title := a.Name
	if title == "" {
		title = "app"
	}
	title = html.EscapeString(title)

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, title)

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, title)

	if err = RenderAppHTML(a, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `<h2>analysis</h2>
<div class="analysis code"><pre>%s</pre></div>
`, html.EscapeString(sio.JSON(x)))

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

// ReadAndRenderAppPage reads an app from the file and renders its
// page.
func ReadAndRenderAppPage(filename string, cssFiles []string, out io.Writer) error {
	a, err := app.ReadFile(filename)
	if err != nil {
		return err
	}
	return RenderAppPage(a, out, cssFiles)
}
