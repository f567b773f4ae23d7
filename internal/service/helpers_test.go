package service

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openticket/boxoffice/internal/model"
	"github.com/openticket/boxoffice/internal/repository"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func int64p(v int64) *int64 { return &v }

// seedEvent creates a live event with one quota of the given size
// covering itemID.
func seedEvent(st *repository.MemoryStore, size *int64, itemID int64) (eventID, quotaID int64) {
	eventID = st.AddEvent(model.Event{Name: "Festival", Live: true})
	quotaID = st.AddQuota(model.Quota{
		EventID: eventID,
		Name:    "General admission",
		Size:    size,
		ItemIDs: []int64{itemID},
	})
	return eventID, quotaID
}

func newCart(st *repository.MemoryStore, calc *Calculator) *Cart {
	return NewCart(st, calc, 30*time.Minute, testLogger())
}
