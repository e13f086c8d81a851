// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rq

import (
	"testing"

	"github.com/arthurwinck/epos-kernel/pkg/sched"
)

type fakeItem struct {
	name string
	rank sched.Criterion
}

func (f *fakeItem) Rank() sched.Criterion { return f.rank }

func TestQueueOrdersByRank(t *testing.T) {
	q := New()
	a := &fakeItem{"a", sched.Criterion{Value: 3}}
	b := &fakeItem{"b", sched.Criterion{Value: 1}}
	c := &fakeItem{"c", sched.Criterion{Value: 2}}
	q.Insert(a)
	q.Insert(b)
	q.Insert(c)

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	if got := q.Min().(*fakeItem); got != b {
		t.Fatalf("Min() = %v, want %v", got, b)
	}
}

func TestQueueFIFOAmongEqualRank(t *testing.T) {
	q := New()
	items := make([]*fakeItem, 3)
	for i := range items {
		items[i] = &fakeItem{rank: sched.Criterion{Value: 5}}
		q.Insert(items[i])
	}
	for i, want := range items {
		got := q.Min()
		if got != want {
			t.Fatalf("drain order[%d] = %v, want %v (FIFO among equal rank)", i, got, want)
		}
		q.Remove(got)
	}
}

func TestReinsertPicksUpNewRank(t *testing.T) {
	q := New()
	a := &fakeItem{"a", sched.Criterion{Value: 5}}
	b := &fakeItem{"b", sched.Criterion{Value: 1}}
	q.Insert(a)
	q.Insert(b)
	if q.Min().(*fakeItem) != b {
		t.Fatalf("expected b to be most urgent before reinsert")
	}
	a.rank = sched.Criterion{Value: 0}
	q.Reinsert(a)
	if q.Min().(*fakeItem) != a {
		t.Fatalf("expected a to be most urgent after reinsert with lower Value")
	}
}

func TestDrainFIFOEmptiesQueue(t *testing.T) {
	q := New()
	q.Insert(&fakeItem{"a", sched.Criterion{Value: 1}})
	q.Insert(&fakeItem{"b", sched.Criterion{Value: 2}})
	items := q.DrainFIFO()
	if len(items) != 2 {
		t.Fatalf("DrainFIFO returned %d items, want 2", len(items))
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after DrainFIFO, Len() = %d", q.Len())
	}
}

func TestContains(t *testing.T) {
	q := New()
	a := &fakeItem{"a", sched.Criterion{Value: 1}}
	if q.Contains(a) {
		t.Fatalf("empty queue should not contain a")
	}
	q.Insert(a)
	if !q.Contains(a) {
		t.Fatalf("queue should contain a after Insert")
	}
	q.Remove(a)
	if q.Contains(a) {
		t.Fatalf("queue should not contain a after Remove")
	}
}
