// Package ledger implements the append-only trade ledger.
//
// The ledger is the durable fallback source of truth for the position: replaying
// its buy/sell rows for a symbol reconstructs the net amount and the weighted
// average cost even when the snapshot file is lost or stale.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var header = []string{"time", "side", "symbol", "price", "amount", "fee", "order_id"}

// Ledger appends executed (or simulated) trades to a CSV file, one row per trade.
type Ledger struct {
	path string
}

// New opens the ledger at path, creating it with a header row on first use.
func New(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty ledger path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create ledger file: %w", err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write ledger header: %w", err)
		}
		w.Flush()
		if err := f.Close(); err != nil {
			return nil, err
		}
	}
	return &Ledger{path: path}, nil
}

// Record appends one immutable entry, timestamped at call time.
// A failure here means the durable trail is broken; callers treat it as fatal
// to the operation that produced the trade.
func (l *Ledger) Record(side, symbol string, price, amount, fee float64, orderID string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open ledger for append: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rec := []string{
		strconv.FormatInt(time.Now().UnixMilli(), 10),
		side,
		symbol,
		strconv.FormatFloat(price, 'f', -1, 64),
		strconv.FormatFloat(amount, 'f', -1, 64),
		strconv.FormatFloat(fee, 'f', -1, 64),
		orderID,
	}
	if err := w.Write(rec); err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// RebuildPosition replays the ledger for symbol and returns (avgCost, netAmount).
//
// Sells never reduce the buy-cost accumulator: avgCost = sum(buyAmount*buyPrice)
// divided by the net remaining amount. This keeps the average cost independent of
// how many partial sells occurred. Returns (0, 0) when the ledger is absent,
// empty, or nets out to a non-positive amount.
func (l *Ledger) RebuildPosition(symbol string) (float64, float64, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return 0, 0, fmt.Errorf("read ledger: %w", err)
	}

	var buyAmt, buyCost, sellAmt float64
	for i, row := range rows {
		if i == 0 || len(row) < 7 {
			// header or a truncated row
			continue
		}
		if row[2] != symbol {
			continue
		}
		amount, errA := strconv.ParseFloat(row[4], 64)
		price, errP := strconv.ParseFloat(row[3], 64)
		if errA != nil || errP != nil {
			continue
		}
		switch strings.ToLower(row[1]) {
		case "buy":
			buyAmt += amount
			buyCost += amount * price
		case "sell":
			sellAmt += amount
		}
	}

	netAmt := buyAmt - sellAmt
	if netAmt > 0 {
		return buyCost / netAmt, netAmt, nil
	}
	return 0, 0, nil
}

// Entries returns all parsed rows for symbol, oldest first. Used by the
// shutdown reporter; malformed rows are skipped the same way RebuildPosition
// skips them.
func (l *Ledger) Entries(symbol string) ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var out []Entry
	for i, row := range rows {
		if i == 0 || len(row) < 7 {
			continue
		}
		if row[2] != symbol {
			continue
		}
		ts, _ := strconv.ParseInt(row[0], 10, 64)
		price, errP := strconv.ParseFloat(row[3], 64)
		amount, errA := strconv.ParseFloat(row[4], 64)
		fee, _ := strconv.ParseFloat(row[5], 64)
		if errP != nil || errA != nil {
			continue
		}
		out = append(out, Entry{
			Time:    ts,
			Side:    strings.ToLower(row[1]),
			Symbol:  row[2],
			Price:   price,
			Amount:  amount,
			Fee:     fee,
			OrderID: row[6],
		})
	}
	return out, nil
}

// Entry mirrors one ledger row.
type Entry struct {
	Time    int64
	Side    string
	Symbol  string
	Price   float64
	Amount  float64
	Fee     float64
	OrderID string
}
