//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"livehub/domain"
	"livehub/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes one published fact. A sink failure is contained by the
// bus: it is logged and never reaches the publisher or the other sinks.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IBus is the typed publish/subscribe decoupling "a fact happened" from
// "who must be notified". Publish never blocks on subscriber execution.
type IBus interface {
	Subscribe(kind event.Kind, sink EventSink)
	Publish(e event.DomainEvent)
}

// IRegistry tracks live connections per user. A user is online iff their
// connection set is non-empty; the OFFLINE↔ONLINE edges are reported to the
// caller so presence facts can be published.
type IRegistry interface {
	Register(userID, connID, displayName string) (domain.Connection, bool)
	Unregister(connID string) (bool, string)
	IsOnline(userID string) bool
	ConnectionsOf(userID string) []domain.Connection
	OnlineUsers() []string
}

// ISender is the outbound notification surface exposed to other modules.
// Both operations are best-effort and asynchronous.
type ISender interface {
	SendToUser(userID string, payload []byte)
	BroadcastToRoom(roomID string, payload []byte)
}

// Directory is the collaborating REST surface consumed by this core.
// The core never owns these schemas; it only calls the contracts.
type Directory interface {
	GetUserRooms(userID string) ([]string, error)
	GetFriendIds(userID string) ([]string, error)
	IsBlocked(userID, otherID string) (bool, error)
}
