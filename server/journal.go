package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// 日志条目类型
const (
	JournalCreate      = "create"
	JournalJoin        = "join"
	JournalLeave       = "leave"
	JournalBlockAdd    = "block_add"
	JournalBlockRemove = "block_remove"
	JournalDelete      = "delete"
)

const journalQueue = 1024

// JournalEntry 一次已应用的房间变更
type JournalEntry struct {
	Time     time.Time `json:"ts"`
	Kind     string    `json:"kind"`
	Room     string    `json:"room"`
	Conn     ConnID    `json:"conn,omitempty"`
	Name     string    `json:"name,omitempty"`
	Block    *Block    `json:"block,omitempty"`
	Position *Vec3     `json:"position,omitempty"`
	Removed  int       `json:"removed,omitempty"`
}

// Journal 房间变更审计日志：按小时滚动的 zstd 压缩 JSONL。
// 只写不读，启动时不会回放。写盘在后台协程完成，队列满时丢弃条目而不阻塞房间。
type Journal struct {
	baseDir string
	metrics *Metrics
	entries chan JournalEntry
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	err     error

	mu     sync.RWMutex
	closed bool // 置位后 Record 不再入队

	// 以下字段只由 run 协程访问
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// OpenJournal dir 为空时返回 nil（关闭日志），nil Journal 的方法都是空操作
func OpenJournal(dir string, m *Metrics) (*Journal, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	if m == nil {
		m = &Metrics{}
	}
	j := &Journal{
		baseDir: dir,
		metrics: m,
		entries: make(chan JournalEntry, journalQueue),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go j.run()
	return j, nil
}

// Record 非阻塞地登记一条变更；关闭后或队列满时丢弃并计数
func (j *Journal) Record(e JournalEntry) {
	if j == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	// 读锁保证入队与 Close 互斥：关闭之前入队的条目都会被 run 写完
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.metrics.IncJournalDropped()
		return
	}
	select {
	case j.entries <- e:
	default:
		j.metrics.IncJournalDropped()
	}
}

// Close 写完队列中剩余条目并关闭文件
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.once.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.quit)
		j.mu.Unlock()
		<-j.done
	})
	return j.err
}

func (j *Journal) run() {
	defer close(j.done)
	for {
		select {
		case e := <-j.entries:
			j.write(e)
		case <-j.quit:
			for {
				select {
				case e := <-j.entries:
					j.write(e)
				default:
					j.err = j.closeFile()
					return
				}
			}
		}
	}
}

func (j *Journal) write(e JournalEntry) {
	hour := e.Time.UTC().Format("2006-01-02-15")
	if hour != j.curHour {
		if err := j.rotate(hour); err != nil {
			Log.Errorw("journal rotate failed", "dir", j.baseDir, "err", err)
			return
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		Log.Errorw("journal encode failed", "err", err)
		return
	}
	if _, err := j.w.Write(b); err != nil {
		Log.Errorw("journal write failed", "err", err)
		return
	}
	if err := j.w.WriteByte('\n'); err != nil {
		Log.Errorw("journal write failed", "err", err)
		return
	}
	if err := j.w.Flush(); err != nil {
		Log.Errorw("journal flush failed", "err", err)
	}
}

func (j *Journal) rotate(hour string) error {
	if err := j.closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(j.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	j.f = f
	j.enc = enc
	j.w = bufio.NewWriterSize(enc, 64*1024)
	j.curHour = hour
	return nil
}

func (j *Journal) closeFile() error {
	var err error
	if j.w != nil {
		_ = j.w.Flush()
	}
	if j.enc != nil {
		err = j.enc.Close()
		j.enc = nil
	}
	if j.f != nil {
		_ = j.f.Close()
		j.f = nil
	}
	j.w = nil
	j.curHour = ""
	return err
}

func (j *Journal) pathForHour(hour string) string {
	return filepath.Join(j.baseDir, fmt.Sprintf("rooms-%s.jsonl.zst", hour))
}
