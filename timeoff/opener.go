/*
opener.go - Year opening job

PURPOSE:
  Periodically makes sure every directory user has a balance row for the
  current year and every ledger-tracked leave type. Rows are otherwise
  created lazily on the first submission or approval, so without this the
  balance view of a user who has not asked for leave yet is empty.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Existing rows are left untouched; opening is idempotent
  - One transaction per user, so one failing user does not block the rest

USAGE:
  opener := NewYearOpener(store, users, ledger, time.Hour, logger)
  opener.Start()
  // ... later
  opener.Stop()

SEE ALSO:
  - ledger.go: EnsureBalance
  - policies.go: which leave types are tracked
*/
package timeoff

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/timekeeper/generic"
)

// YearOpener initializes the current year's balance rows in the background.
type YearOpener struct {
	Store         TxStore
	Users         generic.UserDirectory
	Ledger        *BalanceLedger
	CheckInterval time.Duration

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// OpenSummary reports one pass of the opener.
type OpenSummary struct {
	Year     int
	Opened   int
	Existing int
	Failed   int
}

func NewYearOpener(store TxStore, users generic.UserDirectory, ledger *BalanceLedger, interval time.Duration, logger ...*zap.Logger) *YearOpener {
	l := zap.L().Named("leave.opener")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("leave.opener")
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &YearOpener{
		Store:         store,
		Users:         users,
		Ledger:        ledger,
		CheckInterval: interval,
		logger:        l,
	}
}

// Start begins the background loop. Calling Start twice is a no-op.
func (o *YearOpener) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ticker != nil {
		return
	}
	o.ticker = time.NewTicker(o.CheckInterval)
	o.stop = make(chan struct{})
	o.wg.Add(1)

	go o.run(o.ticker, o.stop)

	o.logger.Info("year opener started", zap.Duration("interval", o.CheckInterval))
}

// Stop stops the loop and waits for a running pass to finish.
func (o *YearOpener) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ticker == nil {
		return
	}
	o.ticker.Stop()
	close(o.stop)
	o.wg.Wait()
	o.ticker = nil
	o.logger.Info("year opener stopped")
}

func (o *YearOpener) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer o.wg.Done()

	o.pass()
	for {
		select {
		case <-ticker.C:
			o.pass()
		case <-stop:
			return
		}
	}
}

func (o *YearOpener) pass() {
	if _, err := o.RunNow(context.Background()); err != nil {
		o.logger.Error("year opening failed", zap.Error(err))
	}
}

// RunNow opens the current year for every user and returns what it did.
func (o *YearOpener) RunNow(ctx context.Context) (OpenSummary, error) {
	year := o.Ledger.Clock.Now().Year()
	summary := OpenSummary{Year: year}

	users, err := o.Users.ListUsers(ctx, generic.UserFilter{})
	if err != nil {
		return summary, fmt.Errorf("list users: %w", err)
	}
	tracked := o.trackedTypes()
	if len(tracked) == 0 {
		return summary, nil
	}

	for _, u := range users {
		opened, existing, err := o.openUser(ctx, u.ID, year, tracked)
		if err != nil {
			summary.Failed++
			o.logger.Warn("open year for user failed",
				zap.String("user_id", string(u.ID)),
				zap.Int("year", year),
				zap.Error(err),
			)
			continue
		}
		summary.Opened += opened
		summary.Existing += existing
	}

	if summary.Opened > 0 || summary.Failed > 0 {
		o.logger.Info("year opening completed",
			zap.Int("year", year),
			zap.Int("opened", summary.Opened),
			zap.Int("existing", summary.Existing),
			zap.Int("failed", summary.Failed),
		)
	}
	return summary, nil
}

func (o *YearOpener) openUser(ctx context.Context, id generic.UserID, year int, tracked []LeaveType) (opened, existing int, err error) {
	err = o.Store.WithTx(ctx, func(tx Store) error {
		opened, existing = 0, 0
		for _, lt := range tracked {
			key := BalanceKey{UserID: id, Year: year, LeaveType: lt}
			b, err := tx.GetBalance(ctx, key)
			if err != nil {
				return err
			}
			if b != nil {
				existing++
				continue
			}
			if _, err := o.Ledger.EnsureBalance(ctx, tx, key); err != nil {
				return err
			}
			opened++
		}
		return nil
	})
	return opened, existing, err
}

func (o *YearOpener) trackedTypes() []LeaveType {
	var out []LeaveType
	for lt, p := range o.Ledger.Policies {
		if p.LedgerTracked {
			out = append(out, lt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
