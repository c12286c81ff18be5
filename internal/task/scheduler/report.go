package scheduler

import (
	"time"

	logx "missionctl/pkg/logx"
)

const storeWarnThrottle = 30 * time.Second

// reportStoreError logs a bookkeeping write failure, at most once per
// job/op per storeWarnThrottle; repeats go to debug.
func (s *Service) reportStoreError(jobID, op string, err error) {
	if err == nil {
		return
	}
	key := jobID + "\x00" + op
	now := time.Now()

	s.errMu.Lock()
	last := s.lastErrWarn[key]
	throttled := !last.IsZero() && now.Sub(last) < storeWarnThrottle
	if !throttled {
		s.lastErrWarn[key] = now
	}
	s.errMu.Unlock()

	if throttled {
		s.log.Debug("job store write failed", logx.String("job_id", jobID), logx.String("op", op), logx.Err(err))
		return
	}
	s.log.Warn("job store write failed", logx.String("job_id", jobID), logx.String("op", op), logx.Err(err))
}
