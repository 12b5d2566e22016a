package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"chartsense/backend-go/internal/models"
	"chartsense/backend-go/internal/services"
)

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	ok := true
	depsStatus := map[string]models.DepStatus{}
	if err := a.model.Health(ctx); err != nil {
		ok = false
		depsStatus["model"] = models.DepStatus{Ok: false, Error: err.Error()}
	} else {
		depsStatus["model"] = models.DepStatus{Ok: true}
	}
	if rc, isRedis := a.cache.(*services.RedisCache); isRedis {
		if err := rc.Ping(ctx); err != nil {
			depsStatus["cache"] = models.DepStatus{Ok: false, Error: err.Error()}
		} else {
			depsStatus["cache"] = models.DepStatus{Ok: true}
		}
	} else {
		depsStatus["cache"] = models.DepStatus{Ok: true}
	}

	writeJSON(w, http.StatusOK, models.HealthResponse{
		Ok:         ok,
		TsISO:      nowISO(),
		Service:    "chartsense-api",
		Version:    os.Getenv("SERVICE_VERSION"),
		Model:      a.model.ModelName(),
		DepsStatus: depsStatus,
		Features:   a.features,
	})
}
