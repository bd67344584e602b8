package xecho

import (
	"context"
	"io"
	"strconv"
	"time"

	"gecho/pkg/xcommon"
)

// Summary accumulates attempt outcomes. It is owned by one goroutine at a time.
type Summary struct {
	Attempts uint64
	Counts   [numOutcomeKinds]uint64
	Bytes    uint64

	RTTMin   time.Duration
	RTTMax   time.Duration
	rttTotal time.Duration
	rttN     uint64
}

func (s *Summary) Add(o Outcome) {
	s.Attempts++
	if o.Kind >= 0 && o.Kind < numOutcomeKinds {
		s.Counts[o.Kind]++
	}
	s.Bytes += uint64(o.Bytes)
	if !o.Completed() {
		return
	}
	if s.rttN == 0 || o.RTT < s.RTTMin {
		s.RTTMin = o.RTT
	}
	if o.RTT > s.RTTMax {
		s.RTTMax = o.RTT
	}
	s.rttTotal += o.RTT
	s.rttN++
}

func (s *Summary) Count(k OutcomeKind) uint64 {
	if k < 0 || k >= numOutcomeKinds {
		return 0
	}
	return s.Counts[k]
}

func (s *Summary) RTTAvg() time.Duration {
	if s.rttN == 0 {
		return 0
	}
	return s.rttTotal / time.Duration(s.rttN)
}

func (s *Summary) rows() [][]string {
	rows := make([][]string, 0, numOutcomeKinds+2)
	for k := OutcomeKind(0); k < numOutcomeKinds; k++ {
		rows = append(rows, []string{k.String(), strconv.FormatUint(s.Counts[k], 10)})
	}
	rows = append(rows,
		[]string{"attempts", strconv.FormatUint(s.Attempts, 10)},
		[]string{"bytes_received", strconv.FormatUint(s.Bytes, 10)},
	)
	if s.rttN > 0 {
		rows = append(rows,
			[]string{"rtt_min", s.RTTMin.String()},
			[]string{"rtt_avg", s.RTTAvg().String()},
			[]string{"rtt_max", s.RTTMax.String()},
		)
	}
	return rows
}

// Print writes the summary as a table.
func (s *Summary) Print(ctx context.Context, w io.Writer) {
	xcommon.PrintTable(ctx, w, []string{"metric", "value"}, s.rows())
}
