// Package featureservice pushes zone batches to an ArcGIS-style hosted
// feature layer over its REST edit endpoints.
package featureservice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

// Client talks to one hosted feature layer.
type Client struct {
	layerURL   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient creates a feature layer client. layerURL is the layer
// endpoint, e.g. ".../FeatureServer/0".
func NewClient(layerURL, token string, opts ...Option) *Client {
	c := &Client{
		layerURL:   strings.TrimRight(layerURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
		log:        zap.L().With(zap.String("component", "featureservice")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// zoneFields is the attribute schema the layer must carry.
var zoneFields = []layerField{
	{Name: "zone_id", Type: "esriFieldTypeString", Length: 64},
	{Name: "batch_id", Type: "esriFieldTypeString", Length: 64},
	{Name: "class", Type: "esriFieldTypeInteger"},
	{Name: "class_count", Type: "esriFieldTypeInteger"},
	{Name: "value_min", Type: "esriFieldTypeDouble"},
	{Name: "value_max", Type: "esriFieldTypeDouble"},
	{Name: "status", Type: "esriFieldTypeString", Length: 16},
	{Name: "created_at", Type: "esriFieldTypeDate"},
}

// Publish ensures the layer schema, marks every live feature superseded,
// and then adds the new zone batch, mirroring the flip-then-append done
// in the local store.
func (c *Client) Publish(ctx context.Context, zones []model.Zone) error {
	if err := c.EnsureFields(ctx); err != nil {
		return err
	}
	if err := c.supersedeCurrent(ctx); err != nil {
		return err
	}
	if err := c.addZones(ctx, zones); err != nil {
		return err
	}
	c.log.Info("published zone batch", zap.Int("zones", len(zones)))
	return nil
}

// EnsureFields adds any missing zone attributes to the layer definition.
func (c *Client) EnsureFields(ctx context.Context) error {
	var def layerDefinition
	if err := c.post(ctx, "", url.Values{}, &def); err != nil {
		return err
	}
	if def.Error != nil {
		return eris.Errorf("featureservice: layer query failed: %s", def.Error.Message)
	}

	existing := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		existing[strings.ToLower(f.Name)] = true
	}
	var missing []layerField
	for _, f := range zoneFields {
		if !existing[f.Name] {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string][]layerField{"fields": missing})
	if err != nil {
		return eris.Wrap(err, "featureservice: encode field definitions")
	}
	var resp calcResponse
	if err := c.post(ctx, "/addToDefinition", url.Values{"addToDefinition": {string(payload)}}, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return eris.Errorf("featureservice: addToDefinition failed: %s", resp.Error.Message)
	}
	c.log.Info("added missing layer fields", zap.Int("fields", len(missing)))
	return nil
}

// supersedeCurrent flips status on all remote features still marked
// current.
func (c *Client) supersedeCurrent(ctx context.Context) error {
	form := url.Values{
		"where":          {"status = 'current'"},
		"calcExpression": {`[{"field":"status","value":"superseded"}]`},
	}
	var resp calcResponse
	if err := c.post(ctx, "/calculate", form, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return eris.Errorf("featureservice: calculate failed: %s", resp.Error.Message)
	}
	return nil
}

// addZones appends the batch as new features.
func (c *Client) addZones(ctx context.Context, zones []model.Zone) error {
	features := make([]feature, 0, len(zones))
	for _, z := range zones {
		features = append(features, feature{
			Geometry: esriGeometry(z.Geometry),
			Attributes: map[string]any{
				"zone_id":     z.ID,
				"batch_id":    z.BatchID,
				"class":       z.Class,
				"class_count": z.ClassCount,
				"value_min":   z.ValueMin,
				"value_max":   z.ValueMax,
				"status":      string(z.Status),
				"created_at":  z.CreatedAt.UTC().UnixMilli(),
			},
		})
	}

	payload, err := json.Marshal(features)
	if err != nil {
		return eris.Wrap(err, "featureservice: encode features")
	}

	var resp addResponse
	if err := c.post(ctx, "/addFeatures", url.Values{"features": {string(payload)}}, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return eris.Errorf("featureservice: addFeatures failed: %s", resp.Error.Message)
	}
	for i, r := range resp.AddResults {
		if !r.Success {
			return eris.Errorf("featureservice: feature %d rejected: %s", i, r.Error.Message)
		}
	}
	return nil
}

// post sends a form-encoded layer request and decodes the JSON response.
func (c *Client) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "featureservice: rate limit wait")
	}

	form.Set("f", "json")
	if c.token != "" {
		form.Set("token", c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.layerURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrapf(err, "featureservice: build request %s", endpoint)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "featureservice: post %s", endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return eris.Wrapf(err, "featureservice: read response %s", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("featureservice: %s returned HTTP %d", endpoint, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "featureservice: decode response %s", endpoint)
	}
	return nil
}

type feature struct {
	Geometry   *geometry      `json:"geometry,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

type geometry struct {
	Rings [][][]float64 `json:"rings"`
}

type svcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *svcError) String() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

type layerField struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Length int    `json:"length,omitempty"`
}

type layerDefinition struct {
	Fields []layerField `json:"fields"`
	Error  *svcError    `json:"error"`
}

type calcResponse struct {
	UpdatedFeatureCount int       `json:"updatedFeatureCount"`
	Error               *svcError `json:"error"`
}

type addResult struct {
	Success bool     `json:"success"`
	Error   svcError `json:"error"`
}

type addResponse struct {
	AddResults []addResult `json:"addResults"`
	Error      *svcError   `json:"error"`
}

// esriGeometry converts a multipolygon to ring-list form.
func esriGeometry(mp *geom.MultiPolygon) *geometry {
	if mp == nil {
		return nil
	}
	g := &geometry{}
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for j := 0; j < poly.NumLinearRings(); j++ {
			ring := poly.LinearRing(j)
			coords := ring.Coords()
			pts := make([][]float64, len(coords))
			for k, c := range coords {
				pts[k] = []float64{c.X(), c.Y()}
			}
			g.Rings = append(g.Rings, pts)
		}
	}
	return g
}
