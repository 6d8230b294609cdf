// Package supabase stores records through the Supabase REST API (PostgREST)
// for deployments that have no direct database connection.
package supabase

import (
	"fmt"
	"strings"
	"time"

	"github.com/callmetrics/callmetrics-api/pkg/config"
	"github.com/supabase-community/postgrest-go"
)

const (
	videosTable         = "videos"
	transcriptionsTable = "transcriptions"
	analysesTable       = "analyses"
)

// NewClient creates a PostgREST client authenticated with the service key
func NewClient(cfg config.SupabaseConfig) (*postgrest.Client, error) {
	if cfg.URL == "" || cfg.ServiceKey == "" {
		return nil, fmt.Errorf("supabase url and service key are required")
	}

	client := postgrest.NewClient(strings.TrimRight(cfg.URL, "/")+"/rest/v1", "", map[string]string{
		"apikey":        cfg.ServiceKey,
		"Authorization": "Bearer " + cfg.ServiceKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("creating supabase client: %w", client.ClientError)
	}
	return client, nil
}

// timestamp formats t the way PostgREST filters expect
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
