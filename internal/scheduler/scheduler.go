package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// 定期ジョブ。前回が終わっていなければ次回は飛ばす。
type Scheduler struct {
	c   *cron.Cron
	log *zap.Logger
}

func New(loc *time.Location, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		c: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(cronParser),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		log: log,
	}
}

// fnにはRunのctxを渡す（停止時にキャンセルされる）
func (s *Scheduler) Add(ctx context.Context, spec string, name string, fn func(ctx context.Context) error) error {
	_, err := s.c.AddFunc(spec, func() {
		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error("job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.log.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	return err
}

// ctxが終わるまで動かし、実行中のジョブを待ってから戻る
func (s *Scheduler) Run(ctx context.Context) error {
	s.c.Start()
	<-ctx.Done()
	<-s.c.Stop().Done()
	return nil
}

func ValidSpec(spec string) error {
	_, err := cronParser.Parse(spec)
	return err
}
