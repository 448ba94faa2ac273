package observability

import (
	"testing"
	"time"

	"github.com/danmuck/replctl/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
	RecordMessage("in", "LOAD")

	before := testutil.ToFloat64(sessionActions.WithLabelValues("metrics_test", "import", "PRINT"))
	RecordAction("metrics_test", "import", "PRINT", 3*time.Millisecond)
	after := testutil.ToFloat64(sessionActions.WithLabelValues("metrics_test", "import", "PRINT"))
	if after-before != 1 {
		t.Fatalf("expected action counter to advance by 1, got %v -> %v", before, after)
	}
}
