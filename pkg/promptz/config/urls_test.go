package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStoreURL(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      StoreSpec
		wantError bool
	}{
		{"empty defaults to memory", "", StoreSpec{Type: StoreMemory}, false},
		{"memory keyword", "memory", StoreSpec{Type: StoreMemory}, false},
		{"memory URL", "memory://", StoreSpec{Type: StoreMemory}, false},
		{"postgres URL", "postgres://u:p@localhost/db", StoreSpec{Type: StorePostgres, DSN: "postgres://u:p@localhost/db"}, false},
		{"postgresql URL", "postgresql://u:p@localhost/db", StoreSpec{Type: StorePostgres, DSN: "postgresql://u:p@localhost/db"}, false},
		{"sqlite absolute", "sqlite:///var/lib/promptz.db", StoreSpec{Type: StoreSQLite, Path: "/var/lib/promptz.db"}, false},
		{"sqlite relative", "sqlite://promptz.db", StoreSpec{Type: StoreSQLite, Path: "promptz.db"}, false},
		{"sqlite empty", "sqlite://", StoreSpec{}, true},
		{"dynamodb aws", "dynamodb://", StoreSpec{Type: StoreDynamoDB}, false},
		{"dynamodb local", "dynamodb://localhost:8000?region=eu-central-1", StoreSpec{Type: StoreDynamoDB, Endpoint: "http://localhost:8000", Region: "eu-central-1"}, false},
		{"dynamodb tls", "dynamodb://ddb.internal:443?tls=true", StoreSpec{Type: StoreDynamoDB, Endpoint: "https://ddb.internal:443"}, false},
		{"invalid URL", "mysql://localhost/db", StoreSpec{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStoreURL(tt.raw)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSinkURL(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		want       SinkSpec
		replayable bool
		wantError  bool
	}{
		{"log", "log://", SinkSpec{Type: SinkLog, Raw: "log://"}, false, false},
		{"noop", "noop", SinkSpec{Type: SinkNoop, Raw: "noop"}, false, false},
		{"memory", "memory://", SinkSpec{Type: SinkMemory, Raw: "memory://"}, true, false},
		{
			"nats with options",
			"nats://user:pw@localhost:4222?stream=EVENTS&subject=app.events&retention=720h",
			SinkSpec{
				Type:          SinkNATS,
				Raw:           "nats://user:pw@localhost:4222?stream=EVENTS&subject=app.events&retention=720h",
				URL:           "nats://user:pw@localhost:4222",
				Stream:        "EVENTS",
				SubjectPrefix: "app.events",
				Retention:     720 * time.Hour,
				HasRetention:  true,
			},
			true, false,
		},
		{"nats bad retention", "nats://localhost:4222?retention=forever", SinkSpec{}, false, true},
		{"nats without host", "nats://", SinkSpec{}, false, true},
		{
			"http",
			"https://sink.example.com/events?token=abc",
			SinkSpec{Type: SinkHTTP, Raw: "https://sink.example.com/events?token=abc", Target: "https://sink.example.com/events?token=abc"},
			false, false,
		},
		{
			"s3 with options",
			"s3://promptz-events/archive/v1/?region=eu-west-1&endpoint=http://localhost:9000&path_style=true&create=1&sse=aws:kms&kms_key=k-1",
			SinkSpec{
				Type:         SinkS3,
				Raw:          "s3://promptz-events/archive/v1/?region=eu-west-1&endpoint=http://localhost:9000&path_style=true&create=1&sse=aws:kms&kms_key=k-1",
				Bucket:       "promptz-events",
				Prefix:       "archive/v1",
				Endpoint:     "http://localhost:9000",
				Region:       "eu-west-1",
				UsePathStyle: true,
				CreateBucket: true,
				SSEAlgorithm: "aws:kms",
				SSEKMSKeyID:  "k-1",
			},
			true, false,
		},
		{"s3 without bucket", "s3:///prefix", SinkSpec{}, false, true},
		{"s3 bad bool", "s3://b?path_style=maybe", SinkSpec{}, false, true},
		{"s3 bad sse", "s3://b?sse=rot13", SinkSpec{}, false, true},
		{"unsupported", "kafka://broker:9092", SinkSpec{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSinkURL(tt.raw)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.replayable, got.Replayable())
		})
	}
}
