package xcommon

import (
	"context"
	"fmt"
	"io"

	"gecho/pkg/xlog"

	"github.com/liushuochen/gotable"
	"go.uber.org/zap"
)

func renderTable(keys []string, values [][]string) (string, error) {
	table, err := gotable.CreateSafeTable(keys...)
	if err != nil {
		return "", err
	}
	for _, vs := range values {
		if err := table.AddRow(vs); err != nil {
			return "", err
		}
	}
	return fmt.Sprint(table), nil
}

// PrintTable 表格输出到w, 失败只记录日志
func PrintTable(ctx context.Context, w io.Writer, keys []string, values [][]string) {
	s, err := renderTable(keys, values)
	if err != nil {
		xlog.Get(ctx).Warn("Print table failed.", zap.Error(err))
		return
	}
	fmt.Fprintln(w, s)
}
