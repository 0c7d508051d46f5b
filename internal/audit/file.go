package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AuctionLogName は管理操作を記録するファイル名。
const AuctionLogName = "auction.jsonl"

var csvHeader = []string{
	"ts_iso", "ts_epoch", "player_id", "player_name", "player_team",
	"bidder_ip", "bidder_name", "amount",
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// FileLog は商品ごとのCSV/JSONLと管理操作用のauction.jsonlへ追記するSink。
type FileLog struct {
	dir string
	mu  sync.Mutex
}

// NewFileLog はログディレクトリを作成してFileLogを返す。
func NewFileLog(dir string) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &FileLog{dir: dir}, nil
}

// Dir はログディレクトリを返す。
func (l *FileLog) Dir() string {
	return l.dir
}

// Append はSinkインターフェースを実装する。
func (l *FileLog) Append(_ context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch rec.Kind {
	case KindBid:
		if err := l.appendCSV(rec); err != nil {
			return err
		}
		return l.appendJSONL(l.itemPath(rec, ".jsonl"), rec)
	case KindClose:
		return l.appendJSONL(l.itemPath(rec, ".jsonl"), rec)
	case KindAdminSettings, KindAdminItemTimes:
		return l.appendJSONL(filepath.Join(l.dir, AuctionLogName), rec)
	default:
		return fmt.Errorf("unknown audit record kind: %q", rec.Kind)
	}
}

// ItemFileBase は商品ログのファイル名（拡張子なし）を返す。
// 表示名はエンティティエスケープ済みのため、元の文字に戻してからスラッグ化する。
func ItemFileBase(itemID, itemName string) string {
	name := html.UnescapeString(itemName)
	if name == "" {
		name = "player"
	}
	return itemID + "-" + Slugify(name)
}

// Slugify は表示名をファイル名に使える形へ変換する。
func Slugify(s string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(slug, "-")
}

func (l *FileLog) itemPath(rec Record, ext string) string {
	return filepath.Join(l.dir, ItemFileBase(rec.ItemID, rec.ItemName)+ext)
}

func (l *FileLog) appendCSV(rec Record) error {
	path := l.itemPath(rec, ".csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open bid csv: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat bid csv: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	row := []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(rec.Timestamp.UnixMilli(), 10),
		rec.ItemID,
		html.UnescapeString(rec.ItemName),
		html.UnescapeString(rec.ItemTeam),
		rec.BidderKey,
		html.UnescapeString(rec.BidderName),
		strconv.FormatInt(rec.Amount, 10),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func (l *FileLog) appendJSONL(path string, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open jsonl: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append jsonl: %w", err)
	}
	return nil
}
