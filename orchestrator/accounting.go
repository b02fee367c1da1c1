// accounting.go ships the single per-worker CDR (call detail record) line
// via Storage.Put, an HTTP PUT (not a POST) carrying X-Append-To: -1;
// everything past that one call - shipping,
// rollup, retention - belongs to the accounting pipeline, not here.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/NVIDIA/zvmd/cmn/nlog"
)

// recordAccounting writes one CDR line per worker that produced one
// (via its diagnostic x-nexe-cdr-line header), when accounting is
// enabled. Failures are logged, not surfaced - a dropped accounting line
// must never fail the job it describes.
func (o *Orchestrator) recordAccounting(ctx context.Context, results []*WorkerResult, now time.Time) {
	acct := o.req.Config.Accounting
	if !acct.Enabled {
		return
	}
	path := fmt.Sprintf("/%s/%s/%s/%s.log", acct.Version, acct.Account, o.req.Account, now.Format("2006/01/02"))
	headers := map[string]string{"X-Append-To": "-1"}
	for _, wr := range results {
		line, ok := wr.Headers["x-nexe-cdr-line"]
		if !ok {
			continue
		}
		body := []byte(line + "\n")
		status, err := o.req.Storage.Put(ctx, path, headers, bytes.NewReader(body), int64(len(body)))
		if err != nil || status >= 300 {
			nlog.Warningf("orchestrator: accounting line for worker %s: status=%d err=%v", wr.Worker.Name, status, err)
		}
	}
}
