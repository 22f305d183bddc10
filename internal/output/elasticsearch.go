package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"golang.org/x/time/rate"

	"github.com/therealutkarshpriyadarshi/rclog/internal/security"
	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// ElasticsearchConfig contains Elasticsearch-specific configuration
type ElasticsearchConfig struct {
	Addresses []string
	Index     string // may contain %{+YYYY.MM.dd}, %{+YYYY.MM} or %{+YYYY}
	Username  string
	Password  string
	APIKey    string
	CloudID   string
	BatchSize int
	RateLimit int
	TLS       *security.TLSConfig
}

// ElasticsearchIndexer bulk-indexes categorized events
type ElasticsearchIndexer struct {
	config  ElasticsearchConfig
	client  *elasticsearch.Client
	limiter *rate.Limiter
	now     func() time.Time
	stats   sinkStats
	closed  atomic.Bool
}

// NewElasticsearchIndexer creates the client and checks the cluster is reachable
func NewElasticsearchIndexer(config ElasticsearchConfig) (*ElasticsearchIndexer, error) {
	if len(config.Addresses) == 0 && config.CloudID == "" {
		return nil, fmt.Errorf("no addresses or cloud ID specified")
	}

	if config.Index == "" {
		return nil, fmt.Errorf("no index specified")
	}

	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}

	tlsConfig, err := security.LoadTLSConfig(config.TLS)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch TLS: %w", err)
	}

	esConfig := elasticsearch.Config{
		Addresses: config.Addresses,
		CloudID:   config.CloudID,
		Username:  config.Username,
		Password:  config.Password,
		APIKey:    config.APIKey,
	}
	if tlsConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		esConfig.Transport = transport
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.Status())
	}

	return &ElasticsearchIndexer{
		config:  config,
		client:  client,
		limiter: newLimiter(config.RateLimit),
		now:     time.Now,
	}, nil
}

// Publish indexes the events in bulk requests of at most BatchSize documents
func (e *ElasticsearchIndexer) Publish(ctx context.Context, events []types.CategorizedEvent) error {
	if e.closed.Load() {
		return fmt.Errorf("elasticsearch indexer is closed")
	}

	for start := 0; start < len(events); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(events) {
			end = len(events)
		}
		if err := waitN(ctx, e.limiter, end-start); err != nil {
			return err
		}
		if err := e.bulk(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (e *ElasticsearchIndexer) bulk(ctx context.Context, events []types.CategorizedEvent) error {
	index := e.IndexName()

	var buf bytes.Buffer
	meta, err := json.Marshal(map[string]map[string]string{"index": {"_index": index}})
	if err != nil {
		return fmt.Errorf("failed to marshal bulk metadata: %w", err)
	}

	for _, event := range events {
		doc, err := json.Marshal(event)
		if err != nil {
			e.stats.failure(1, err)
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}
	size := int64(buf.Len())

	start := time.Now()
	res, err := e.client.Bulk(bytes.NewReader(buf.Bytes()), e.client.Bulk.WithContext(ctx))
	if err != nil {
		e.stats.failure(int64(len(events)), err)
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		err := fmt.Errorf("bulk request returned error: %s", res.Status())
		e.stats.failure(int64(len(events)), err)
		return err
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		e.stats.failure(int64(len(events)), err)
		return fmt.Errorf("failed to parse bulk response: %w", err)
	}

	var failed int64
	var lastReason string
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, doc := range item {
				if doc.Status >= 400 {
					failed++
					lastReason = doc.Error.Type + ": " + doc.Error.Reason
				}
			}
		}
	}

	e.stats.success(int64(len(events))-failed, size, time.Since(start))
	if failed > 0 {
		err := fmt.Errorf("%d out of %d events failed to index: %s", failed, len(events), lastReason)
		e.stats.failure(failed, err)
		return err
	}
	return nil
}

// IndexName resolves the date patterns of the configured index
func (e *ElasticsearchIndexer) IndexName() string {
	now := e.now()
	return strings.NewReplacer(
		"%{+YYYY.MM.dd}", now.Format("2006.01.02"),
		"%{+YYYY.MM}", now.Format("2006.01"),
		"%{+YYYY}", now.Format("2006"),
	).Replace(e.config.Index)
}

// Close closes the indexer
func (e *ElasticsearchIndexer) Close() error {
	e.closed.Store(true)
	return nil
}

// Name returns the sink name
func (e *ElasticsearchIndexer) Name() string {
	return "elasticsearch"
}

// Metrics returns the current metrics
func (e *ElasticsearchIndexer) Metrics() *SinkMetrics {
	return e.stats.snapshot()
}
