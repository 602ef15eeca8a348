package stream

import "testing"

// Invariant 5 from spec.md §8: producers_remaining == 0 iff the iterator
// eventually returns None (here: the results channel is closed).
func TestRecordsetClosesOnlyWhenEveryProducerIsDone(t *testing.T) {
	rs := newRecordset(func() {}, &PartitionTracker{})
	rs.addProducer(2)

	rs.push(Result{Record: &Record{}})
	rs.producerDone()

	select {
	case res, ok := <-rs.Results():
		if !ok {
			t.Fatal("channel closed before the last producer finished")
		}
		if res.Record == nil {
			t.Fatal("expected the pushed record")
		}
	default:
		t.Fatal("expected a buffered result to be immediately readable")
	}

	// One producer remains: the channel must still be open.
	select {
	case _, ok := <-rs.Results():
		if !ok {
			t.Fatal("channel closed with one producer still outstanding")
		}
		t.Fatal("unexpected result with no pending pushes")
	default:
	}

	rs.producerDone()

	res, ok := <-rs.Results()
	if ok {
		t.Fatalf("expected the channel to be closed once producers reach zero, got %+v", res)
	}
}

func TestRecordsetCloseUnblocksProducers(t *testing.T) {
	canceled := false
	rs := newRecordset(func() { canceled = true }, &PartitionTracker{})
	rs.addProducer(1)

	rs.Close()
	if !canceled {
		t.Fatal("Close should invoke the cancel func")
	}
	if rs.isActive() {
		t.Fatal("Close should mark the recordset inactive")
	}
	if ok := rs.push(Result{Record: &Record{}}); ok {
		t.Fatal("push after Close should report false")
	}
}
