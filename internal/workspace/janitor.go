package workspace

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger drops expired cache entries. The in-memory cache implements it.
type Purger interface {
	Purge() int
}

// Janitor periodically sweeps idle workspaces.
type Janitor struct {
	Cron     *cron.Cron
	Registry *Registry
	Idle     time.Duration
	Cache    Purger
}

func NewJanitor(reg *Registry, idle time.Duration, cache Purger) *Janitor {
	return &Janitor{
		Cron:     cron.New(),
		Registry: reg,
		Idle:     idle,
		Cache:    cache,
	}
}

// Register adds the sweep under the given cron spec ("@every 10m", "*/5 * * * *").
func (j *Janitor) Register(spec string) error {
	if _, err := j.Cron.AddFunc(spec, j.RunNow); err != nil {
		return fmt.Errorf("register workspace sweep: %w", err)
	}
	return nil
}

func (j *Janitor) Start() {
	j.Cron.Start()
	log.Println("[INFO] janitor started")
}

func (j *Janitor) Stop() {
	<-j.Cron.Stop().Done()
	log.Println("[INFO] janitor stopped")
}

// RunNow sweeps immediately.
func (j *Janitor) RunNow() {
	n := j.Registry.Sweep(j.Idle)
	purged := 0
	if j.Cache != nil {
		purged = j.Cache.Purge()
	}
	if n > 0 || purged > 0 {
		log.Printf("[INFO] janitor dropped %d idle workspaces, %d cache entries", n, purged)
	}
}
