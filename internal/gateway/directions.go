package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var tagRe = regexp.MustCompile(`<[^>]+>`)

type Step struct {
	Instruction string
	Distance    string
}

// MapsDirections looks routes up with the Google Directions web API.
type MapsDirections struct {
	client  *http.Client
	baseURL string
	key     string
}

func NewMapsDirections(client *http.Client, baseURL, key string) *MapsDirections {
	return &MapsDirections{client: client, baseURL: baseURL, key: key}
}

// Steps returns the steps of the first leg of the first route, with
// markup stripped from the instructions. No route is an empty list.
func (d *MapsDirections) Steps(ctx context.Context, origin, destination string) ([]Step, error) {
	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("key", d.key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: directions: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read directions: %v", ErrTransport, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: directions: status %d", ErrTransport, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: directions: malformed body", ErrTransport)
	}

	var steps []Step
	gjson.GetBytes(body, "routes.0.legs.0.steps").ForEach(func(_, s gjson.Result) bool {
		steps = append(steps, Step{
			Instruction: stripMarkup(s.Get("html_instructions").String()),
			Distance:    s.Get("distance.text").String(),
		})
		return true
	})

	return steps, nil
}

func stripMarkup(html string) string {
	return strings.Join(strings.Fields(tagRe.ReplaceAllString(html, " ")), " ")
}
