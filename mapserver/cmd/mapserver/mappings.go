// Copyright 2024 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lispms/lispms/mapserver/mgmtapi"
	"github.com/lispms/lispms/pkg/private/serrors"
	"github.com/lispms/lispms/private/app/command"
	api "github.com/lispms/lispms/private/mgmtapi"
)

type mappingsFlags struct {
	api     string
	format  string
	timeout time.Duration
}

func (f *mappingsFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.api, "api", "127.0.0.1:30442", "address of the management API")
	fs.StringVar(&f.format, "format", "human", "output format (human|json)")
	fs.DurationVar(&f.timeout, "timeout", 5*time.Second, "timeout of the request")
}

func newMappings(pather command.Pather) *cobra.Command {
	var flags mappingsFlags
	cmd := &cobra.Command{
		Use:   "mappings <origin>",
		Short: "Show the mappings of a running map server",
		Long: `Fetches the mappings of the given origin (northbound or southbound)
from the management API of a running map server.`,
		Example: "  " + pather.CommandPath() + " mappings southbound --api 127.0.0.1:30442",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.format != "human" && flags.format != "json" {
				return serrors.New("unsupported format", "format", flags.format)
			}
			cmd.SilenceUsage = true
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			mappings, err := fetchMappings(ctx, http.DefaultClient, flags.api, args[0])
			if err != nil {
				return err
			}
			if flags.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "    ")
				return enc.Encode(mappings)
			}
			renderMappings(cmd.OutOrStdout(), mappings)
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func fetchMappings(ctx context.Context, client *http.Client, addr,
	origin string) ([]mgmtapi.Mapping, error) {

	u := url.URL{Scheme: "http", Host: addr, Path: "/mappings/" + url.PathEscape(origin)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, serrors.Wrap("creating request", err, "url", u.String())
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, serrors.Wrap("requesting mappings", err, "url", u.String())
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, serrors.Wrap("reading response", err)
	}
	if resp.StatusCode != http.StatusOK {
		var p api.Problem
		if err := json.Unmarshal(raw, &p); err == nil && p.Title != "" {
			detail := ""
			if p.Detail != nil {
				detail = *p.Detail
			}
			return nil, serrors.New("map server rejected request",
				"status", p.Status, "title", p.Title, "detail", detail)
		}
		return nil, serrors.New("unexpected response", "status", resp.StatusCode)
	}
	var mappings []mgmtapi.Mapping
	if err := json.Unmarshal(raw, &mappings); err != nil {
		return nil, serrors.Wrap("decoding mappings", err)
	}
	return mappings, nil
}

func renderMappings(w io.Writer, mappings []mgmtapi.Mapping) {
	if len(mappings) == 0 {
		fmt.Fprintln(w, "No mappings")
		return
	}
	rows := make([][]string, 0, len(mappings))
	for _, m := range mappings {
		locs := make([]string, 0, len(m.Locators))
		for _, l := range m.Locators {
			locs = append(locs, l.RLOC+" ("+strconv.Itoa(int(l.Priority))+"/"+
				strconv.Itoa(int(l.Weight))+")")
		}
		rows = append(rows, []string{m.EID, strings.Join(locs, ", "), m.TTL, m.XtrID,
			m.Timestamp.UTC().Format(time.RFC3339)})
	}
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"EID", "LOCATORS", "TTL", "XTR-ID", "REGISTERED"})
	table.AppendBulk(rows)
	table.Render()
}
