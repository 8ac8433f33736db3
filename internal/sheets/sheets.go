// Package sheets fetches the GWAS formatting legend from the Google
// Sheets v4 REST API.
package sheets

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"github.com/mrvillage/gwas-summary-stats/internal/table"
)

const defaultBaseURL = "https://sheets.googleapis.com"

// Client fetches spreadsheet contents.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Sheets API client authenticated by API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

type spreadsheetMeta struct {
	Sheets []struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

type valueRange struct {
	Values [][]string `json:"values"`
}

// FetchLegend downloads the first sheet of the spreadsheet and returns
// it as a table. The first value row is the header; shorter data rows
// are padded with empty cells, as the API omits trailing blanks.
func (c *Client) FetchLegend(spreadsheetID string) (*table.Table, error) {
	var meta spreadsheetMeta
	if err := c.getJSON(fmt.Sprintf("/v4/spreadsheets/%s", spreadsheetID), &meta); err != nil {
		return nil, err
	}
	if len(meta.Sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet %s has no sheets", spreadsheetID)
	}
	title := meta.Sheets[0].Properties.Title

	var vr valueRange
	path := fmt.Sprintf("/v4/spreadsheets/%s/values/%s", spreadsheetID, url.PathEscape(title))
	if err := c.getJSON(path, &vr); err != nil {
		return nil, err
	}
	if len(vr.Values) == 0 {
		return nil, fmt.Errorf("sheet %q of spreadsheet %s is empty", title, spreadsheetID)
	}

	header := vr.Values[0]
	tab := table.New(header...)
	for i, vals := range vr.Values[1:] {
		row := make([]string, len(header))
		copy(row, vals)
		if err := tab.AppendRow(row); err != nil {
			return nil, fmt.Errorf("legend row %d: %w", i+1, err)
		}
	}
	return tab, nil
}

func (c *Client) getJSON(path string, dst any) error {
	u := fmt.Sprintf("%s%s?key=%s", c.baseURL, path, url.QueryEscape(c.apiKey))
	resp, err := c.httpClient.Get(u)
	if err != nil {
		return fmt.Errorf("sheets API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sheets API error %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode sheets response: %w", err)
	}
	return nil
}
