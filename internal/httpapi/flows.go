package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/R3E-Network/ledger_gateway/internal/flowcache"
	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/ledger/catalog"
	"github.com/R3E-Network/ledger_gateway/internal/metrics"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

func (h *handler) flow(r *http.Request) (catalog.FlowDescriptor, error) {
	name := mux.Vars(r)["flow"]
	desc, ok := h.catalog.Flow(name)
	if !ok {
		return catalog.FlowDescriptor{}, ledger.NewNotFoundError("flow", name)
	}
	return desc, nil
}

// startFlow decodes the flow instruction, starts the flow and answers with
// its initial snapshot.
func (h *handler) startFlow(w http.ResponseWriter, r *http.Request) {
	desc, err := h.flow(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.decodeBody(r, serialization.KeyFor[ledger.FlowInstruction](desc.Args), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	instruction := v.(ledger.FlowInstruction)
	instruction.FlowClass = desc.Name

	handle, err := h.node.StartFlow(r.Context(), instruction, desc.Args)
	metrics.RecordFlowStart(desc.Name, err == nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	snapshot := handle.InitialSnapshot()
	if h.tracker != nil {
		if snapshot, err = h.tracker.Track(r.Context(), handle, desc.Returns); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	w.Header().Set("Location", snapshotPath(desc.Name, handle.RunID.String()))
	h.respond(w, r, http.StatusAccepted, snapshot, flowcache.SnapshotKey(desc.Returns))
}

func snapshotPath(flow, runID string) string {
	return "/node/flows/" + flow + "/snapshots/" + runID
}

// snapshot loads the latest snapshot of a run of the flow in desc.
func (h *handler) snapshot(ctx context.Context, desc catalog.FlowDescriptor, runID string) (ledger.FlowSnapshot, error) {
	var (
		snapshot ledger.FlowSnapshot
		err      error
	)
	if h.tracker != nil {
		snapshot, err = h.tracker.Snapshot(ctx, runID, desc.Returns)
	} else {
		var status ledger.FlowStatus
		status, err = h.node.FlowStatus(ctx, runID, flowcache.SnapshotKey(desc.Returns))
		snapshot = status.Snapshot
	}
	if err != nil {
		return ledger.FlowSnapshot{}, err
	}
	if snapshot.FlowClass != desc.Name {
		return ledger.FlowSnapshot{}, ledger.NewNotFoundError("run of "+desc.Name, runID)
	}
	return snapshot, nil
}

func runID(r *http.Request) (string, error) {
	id, err := uuid.Parse(mux.Vars(r)["runId"])
	if err != nil {
		return "", badRequest("invalid flow run id: %v", err)
	}
	return id.String(), nil
}

func (h *handler) flowSnapshot(w http.ResponseWriter, r *http.Request) {
	desc, err := h.flow(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := runID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snapshot, err := h.snapshot(r.Context(), desc, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, snapshot, flowcache.SnapshotKey(desc.Returns))
}

// flowUpdates streams snapshots over a websocket until the flow completes.
func (h *handler) flowUpdates(w http.ResponseWriter, r *http.Request) {
	desc, err := h.flow(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := runID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	codec, err := h.registry.Resolve(flowcache.SnapshotKey(desc.Returns))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var (
		updates    <-chan ledger.FlowSnapshot
		subscribed bool
	)
	if h.tracker != nil {
		var cancel func()
		updates, cancel, subscribed = h.tracker.Subscribe(id)
		defer cancel()
	}
	current, err := h.snapshot(r.Context(), desc, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("run_id", id).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(snapshot ledger.FlowSnapshot) error {
		tree, err := codec.Encode(snapshot)
		if err != nil {
			return err
		}
		data, err := json.Marshal(tree)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}
	finish := func() {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "flow completed"))
	}

	if err := send(current); err != nil {
		h.log.WithError(err).WithField("run_id", id).Warn("send flow snapshot failed")
		return
	}
	if current.Completed() || !subscribed {
		finish()
		return
	}
	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				finish()
				return
			}
			if err := send(snapshot); err != nil {
				h.log.WithError(err).WithField("run_id", id).Warn("send flow snapshot failed")
				return
			}
		case <-closed:
			return
		}
	}
}
