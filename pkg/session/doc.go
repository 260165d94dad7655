// Package session maintains the running narrative of each live media feed.
//
// Invariants:
// - Scene descriptions fold into the narrative in FIFO arrival order.
// - At most one aggregator loop drains a session's queue at any time.
// - Analysis calls never execute while holding a session lock.
// - A failed fold re-queues its description at the head and leaves the
//   session idle so the next producer event restarts aggregation.
//
// Usage:
//
//	orch, _ := session.NewOrchestrator(session.Options{...})
//	id := orch.CreateSession()
//	_ = orch.SubmitMedia(ctx, id, frame, "gemini-2.5-flash", "gemini-2.5-flash-lite")
//	answer, _ := orch.Query(ctx, session.QueryRequest{SessionID: id, Question: "what happened?"})
//	_ = answer
package session
