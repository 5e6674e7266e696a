// Package persistence 订单预写日志
package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"ariac-fulfillment/internal/types"
)

// Op 日志记录类型
type Op string

const (
	OpOrder     Op = "ORDER"     // 订单已接收
	OpSubmitted Op = "SUBMITTED" // 订单已提交
)

// Record WAL 中的一行
type Record struct {
	Op       Op                    `json:"op"`
	Sequence uint64                `json:"seq,omitempty"`
	Order    *types.OrderAnnounced `json:"order,omitempty"`
	OrderID  string                `json:"order_id,omitempty"`
}

// WAL 按行追加 JSON 记录；重启时回放出已接收但未提交的订单
type WAL struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func NewWAL(path string) (*WAL, error) {
	f, err := openLog(path)
	if err != nil {
		return nil, err
	}
	return &WAL{path: path, file: f}, nil
}

func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
}

// Append 记录一个新接收的订单
func (w *WAL) Append(o *types.Order) error {
	a := o.Announcement()
	return w.write(Record{Op: OpOrder, Sequence: o.Sequence, Order: &a})
}

// Complete 记录订单已提交
func (w *WAL) Complete(orderID string) error {
	return w.write(Record{Op: OpSubmitted, OrderID: orderID})
}

func (w *WAL) write(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return err
	}
	return w.file.Sync()
}

// Recover 回放日志，返回未提交订单的 ORDER 记录（按到达序号排列），
// 并把日志压缩为只含这些记录；序号保持不变
func (w *WAL) Recover() ([]Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	open, err := replay(w.file)
	if err != nil {
		return nil, err
	}
	if err := w.compact(open); err != nil {
		return nil, fmt.Errorf("compact wal: %w", err)
	}
	return open, nil
}

// replay 读出所有未提交订单的 ORDER 记录，损坏的行跳过
func replay(r io.Reader) ([]Record, error) {
	received := make(map[string]Record)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec Record
		if json.Unmarshal(scanner.Bytes(), &rec) != nil {
			continue
		}
		switch rec.Op {
		case OpOrder:
			if rec.Order != nil {
				received[rec.Order.ID] = rec
			}
		case OpSubmitted:
			delete(received, rec.OrderID)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	open := make([]Record, 0, len(received))
	for _, rec := range received {
		open = append(open, rec)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Sequence < open[j].Sequence })
	return open, nil
}

// compact 写临时文件后原子替换，调用方持有 mu
func (w *WAL) compact(open []Record) error {
	tmpPath := w.path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	for _, rec := range open {
		if err := enc.Encode(rec); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return err
	}

	f, err := openLog(w.path)
	if err != nil {
		return err
	}
	w.file.Close()
	w.file = f
	return nil
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
