package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"go.uber.org/zap"
)

const (
	sweepLockKey = "marketplace:sweep:drafts"
	sweepLockTTL = 2 * time.Minute
	sweepBatch   = 200
)

type DraftRetention string

const (
	DraftRetentionKeep   DraftRetention = "keep"
	DraftRetentionDelete DraftRetention = "delete"
)

type SweeperConfig struct {
	// updated_atがこれより古いDRAFTを放置扱い
	AbandonAfter time.Duration
	Retention    DraftRetention
}

type SweepResult struct {
	OrdersSwept      int   `json:"orders_swept"`
	BookingsReleased int   `json:"bookings_released"`
	QuantityReleased int64 `json:"quantity_released"`
	OrdersDeleted    int   `json:"orders_deleted"`
	Failed           int   `json:"failed"`
	// 他で実行中だったので何もしなかった
	Skipped bool `json:"skipped"`
}

func (r *SweepResult) add(o SweepResult) {
	r.OrdersSwept += o.OrdersSwept
	r.BookingsReleased += o.BookingsReleased
	r.QuantityReleased += o.QuantityReleased
	r.OrdersDeleted += o.OrdersDeleted
}

// チェックアウト・枠一覧・cleanupから呼ぶ
type DraftSweeper interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// 放置されたDRAFTと日付切れの予約から容量を回収する。
// 注文ごとに1トランザクション。1件の失敗で残りを止めない。
type SweeperUsecase struct {
	tx     repo.TransactionManager
	ledger *CapacityLedger
	locker Locker
	clock  Clock
	cfg    SweeperConfig
	log    *zap.Logger

	// 同一プロセス内の同時実行をまとめる
	mu sync.Mutex
}

func NewSweeperUsecase(tx repo.TransactionManager, ledger *CapacityLedger, locker Locker, clock Clock, cfg SweeperConfig, log *zap.Logger) *SweeperUsecase {
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = 24 * time.Hour
	}
	if cfg.Retention == "" {
		cfg.Retention = DraftRetentionKeep
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SweeperUsecase{tx: tx, ledger: ledger, locker: locker, clock: clock, cfg: cfg, log: log}
}

func (s *SweeperUsecase) Sweep(ctx context.Context) (SweepResult, error) {
	if !s.mu.TryLock() {
		return SweepResult{Skipped: true}, nil
	}
	defer s.mu.Unlock()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, sweepLockKey, sweepLockTTL)
		if err != nil {
			return SweepResult{}, err
		}
		if !ok {
			return SweepResult{Skipped: true}, nil
		}
		defer release()
	}

	var result SweepResult

	cutoff := s.clock.Now().Add(-s.cfg.AbandonAfter)
	var abandoned []model.Order
	if err := s.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		abandoned, err = r.Orders().ListAbandonedDrafts(ctx, repo.AbandonedDraftFilter{
			Before: cutoff,
			// 残す設定では予約の無いカートに用は無い
			HoldingOnly: s.cfg.Retention != DraftRetentionDelete,
			Limit:       sweepBatch,
		})
		return err
	}); err != nil {
		return result, err
	}

	for _, o := range abandoned {
		res, err := s.sweepAbandoned(ctx, o.ID, cutoff)
		if err != nil {
			result.Failed++
			s.log.Warn("sweep draft failed", zap.Int64("order_id", o.ID), zap.Error(err))
			continue
		}
		result.add(res)
	}

	expired, err := s.expiredBookingsByOrder(ctx)
	if err != nil {
		return result, err
	}
	for orderID, bookingIDs := range expired {
		res, err := s.sweepExpiredBookings(ctx, orderID, bookingIDs)
		if err != nil {
			result.Failed++
			s.log.Warn("sweep expired bookings failed", zap.Int64("order_id", orderID), zap.Error(err))
			continue
		}
		result.add(res)
	}

	if result.OrdersSwept > 0 || result.Failed > 0 {
		s.log.Info("draft sweep finished",
			zap.Int("orders_swept", result.OrdersSwept),
			zap.Int("bookings_released", result.BookingsReleased),
			zap.Int64("quantity_released", result.QuantityReleased),
			zap.Int("orders_deleted", result.OrdersDeleted),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *SweeperUsecase) sweepAbandoned(ctx context.Context, orderID int64, cutoff time.Time) (SweepResult, error) {
	var res SweepResult

	err := s.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, locked, err := r.Orders().TryLockForSweep(ctx, orderID)
		if err != nil {
			return err
		}
		// 操作中、またはもうDRAFTではない
		if !locked {
			return nil
		}
		// 一覧取得の後に触られた
		if !o.UpdatedAt.Before(cutoff) {
			return nil
		}

		bookings, err := r.Bookings().ListByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		for _, b := range bookings {
			qty, err := s.ledger.ReleaseBooking(ctx, r, b)
			if err != nil {
				return err
			}
			if err := r.Bookings().DeleteByID(ctx, b.ID); err != nil {
				return err
			}
			res.BookingsReleased++
			res.QuantityReleased += qty
		}

		if s.cfg.Retention == DraftRetentionDelete {
			if err := r.OrderItems().DeleteByOrderID(ctx, orderID); err != nil {
				return err
			}
			if err := r.Orders().DeleteByID(ctx, orderID); err != nil {
				return err
			}
			res.OrdersDeleted++
		} else {
			// updated_atも進むので次回の対象から外れる
			if _, err := recomputeTotal(ctx, r, orderID); err != nil {
				return err
			}
		}
		res.OrdersSwept++

		return s.audit(ctx, r, o, res)
	})
	if err != nil {
		return SweepResult{}, err
	}
	return res, nil
}

// 日付切れ枠への予約（DRAFTのみ）を注文ごとにまとめる
func (s *SweeperUsecase) expiredBookingsByOrder(ctx context.Context) (map[int64][]int64, error) {
	out := map[int64][]int64{}
	err := s.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		bookings, err := r.Bookings().ListDraftOnExpiredSlots(ctx, s.ledger.Today(), sweepBatch)
		if err != nil {
			return err
		}
		for _, b := range bookings {
			out[b.OrderID] = append(out[b.OrderID], b.ID)
		}
		return nil
	})
	return out, err
}

func (s *SweeperUsecase) sweepExpiredBookings(ctx context.Context, orderID int64, bookingIDs []int64) (SweepResult, error) {
	var res SweepResult

	err := s.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, locked, err := r.Orders().TryLockForSweep(ctx, orderID)
		if err != nil {
			return err
		}
		if !locked {
			return nil
		}

		for _, id := range bookingIDs {
			// ロック前に消されているかもしれない
			b, err := r.Bookings().FindByID(ctx, id)
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			qty, err := s.ledger.ReleaseBooking(ctx, r, b)
			if err != nil {
				return err
			}
			if err := r.Bookings().DeleteByID(ctx, b.ID); err != nil {
				return err
			}
			res.BookingsReleased++
			res.QuantityReleased += qty
		}
		if res.BookingsReleased == 0 {
			return nil
		}

		if _, err := recomputeTotal(ctx, r, orderID); err != nil {
			return err
		}
		res.OrdersSwept++
		return s.audit(ctx, r, o, res)
	})
	if err != nil {
		return SweepResult{}, err
	}
	return res, nil
}

func (s *SweeperUsecase) audit(ctx context.Context, r repo.TxRepos, o model.Order, res SweepResult) error {
	after, _ := json.Marshal(map[string]interface{}{
		"bookings_released": res.BookingsReleased,
		"quantity_released": res.QuantityReleased,
		"deleted":           res.OrdersDeleted > 0,
	})
	return r.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  0,
		Action:       model.AuditActionSweepDraft,
		ResourceType: model.AuditResourceOrder,
		ResourceID:   o.ID,
		BeforeJSON:   `{"status":"` + string(o.Status) + `"}`,
		AfterJSON:    string(after),
		CreatedAt:    s.clock.Now(),
	})
}

// 呼び出し元の処理を止めない（失敗はログだけ）
func sweepBestEffort(ctx context.Context, sw DraftSweeper, log *zap.Logger, trigger string) {
	if sw == nil {
		return
	}
	if _, err := sw.Sweep(ctx); err != nil {
		log.Warn("draft sweep failed", zap.String("trigger", trigger), zap.Error(err))
	}
}
