package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const defaultServerURL = "http://127.0.0.1:8080"

// adminCall hits one loopback admin endpoint of a running server.
type adminCall struct {
	baseURL string
	timeout time.Duration
}

func (c adminCall) do(method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	u := strings.TrimRight(strings.TrimSpace(c.baseURL), "/") + path
	req, err := http.NewRequest(method, u, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := (&http.Client{Timeout: c.timeout}).Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", defaultServerURL, "server base url")
	raw := fs.Bool("raw", false, "print the JSON document only")
	_ = fs.Parse(args)

	status, b, err := adminCall{baseURL: *baseURL, timeout: 5 * time.Second}.do(http.MethodGet, "/admin/v1/state", nil)
	exitOnCallErr(status, b, err)
	if !*raw {
		var doc struct {
			StationID string `json:"station_id"`
			RunID     string `json:"run_id"`
			Tick      uint64 `json:"tick"`
			State     struct {
				State     string  `json:"state"`
				Days      float64 `json:"days"`
				TotalDays float64 `json:"total_days"`
			} `json:"state"`
		}
		if json.Unmarshal(b, &doc) == nil {
			fmt.Printf("station=%s run=%s tick=%s state=%s days=%s total_days=%s\n",
				doc.StationID, doc.RunID, humanize.Comma(int64(doc.Tick)), doc.State.State,
				humanize.Ftoa(doc.State.Days), humanize.Ftoa(doc.State.TotalDays))
		}
	}
	printJSON(b)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", defaultServerURL, "server base url")
	_ = fs.Parse(args)

	status, b, err := adminCall{baseURL: *baseURL, timeout: 10 * time.Second}.do(http.MethodPost, "/admin/v1/snapshot", nil)
	exitOnCallErr(status, b, err)
	printJSON(b)
}

// commandCmd submits an operator command, e.g. `admin cmd FORCE_BOSS` or
// `admin cmd -target wormholeTheory GRANT_SECRET`.
func commandCmd(args []string) {
	fs := flag.NewFlagSet("cmd", flag.ExitOnError)
	baseURL := fs.String("url", defaultServerURL, "server base url")
	target := fs.String("target", "", "command target")
	resume := fs.Bool("resume", false, "unpause after FORCE_BOSS")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin cmd [-url URL] [-target T] [-resume] CMD")
		os.Exit(2)
	}
	body := map[string]any{
		"cmd":    strings.ToUpper(strings.TrimSpace(fs.Arg(0))),
		"target": strings.TrimSpace(*target),
		"resume": *resume,
	}
	status, b, err := adminCall{baseURL: *baseURL, timeout: 10 * time.Second}.do(http.MethodPost, "/admin/v1/cmd", body)
	exitOnCallErr(status, b, err)
	printJSON(b)
}

func exitOnCallErr(status int, body []byte, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	if status/100 != 2 {
		fmt.Fprintf(os.Stderr, "server returned %d: %s\n", status, strings.TrimSpace(string(body)))
		os.Exit(1)
	}
}

func printJSON(b []byte) {
	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(b), "", "  "); err != nil {
		fmt.Println(strings.TrimSpace(string(b)))
		return
	}
	fmt.Println(out.String())
}
