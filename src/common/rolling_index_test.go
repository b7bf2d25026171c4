package common

import (
	"strconv"
	"testing"
)

func TestRollingIndex(t *testing.T) {
	size := 10
	testSize := 3 * size
	rollingIndex := NewRollingIndex("test", size)
	items := []string{}
	for i := 0; i < testSize; i++ {
		item := strconv.Itoa(i)
		rollingIndex.Set(item, i)
		items = append(items, item)
	}
	cached, lastIndex := rollingIndex.GetLastWindow()

	expectedLastIndex := testSize - 1
	if lastIndex != expectedLastIndex {
		t.Fatalf("lastIndex should be %d, not %d", expectedLastIndex, lastIndex)
	}

	start := (testSize / (2 * size)) * (size)
	expectedItems := items[start:]
	for i, item := range expectedItems {
		if cached[i] != item {
			t.Fatalf("cached[%d] should be %s, not %s", i, item, cached[i])
		}
	}

	err := rollingIndex.Set("ErrSkippedIndex", expectedLastIndex+2)
	if !IsStore(err, SkippedIndex) {
		t.Fatalf("expected SkippedIndex error, got %v", err)
	}

	_, err = rollingIndex.GetItem(start - 1)
	if !IsStore(err, TooLate) {
		t.Fatalf("expected TooLate error, got %v", err)
	}

	//check that we can update an item in the window
	if err := rollingIndex.Set("updated", expectedLastIndex); err != nil {
		t.Fatal(err)
	}
	item, err := rollingIndex.GetItem(expectedLastIndex)
	if err != nil {
		t.Fatal(err)
	}
	if item.(string) != "updated" {
		t.Fatalf("item should be %s, not %s", "updated", item)
	}
}

func TestRollingIndexSkip(t *testing.T) {
	size := 10
	rollingIndex := NewRollingIndex("test", size)

	_, err := rollingIndex.Get(-1)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < size; i++ {
		rollingIndex.Set(strconv.Itoa(i), i)
	}

	skipIndex := 2
	expected := []string{"3", "4", "5", "6", "7", "8", "9"}
	cached, err := rollingIndex.Get(skipIndex)
	if err != nil {
		t.Fatal(err)
	}
	for i, item := range expected {
		if cached[i].(string) != item {
			t.Fatalf("cached[%d] should be %s, not %s", i, item, cached[i])
		}
	}
}

func TestRollingIndexMap(t *testing.T) {
	size := 10
	rim := NewRollingIndexMap("test", size)

	for id := uint32(0); id < 3; id++ {
		if err := rim.AddKey(id); err != nil {
			t.Fatal(err)
		}
	}

	if err := rim.AddKey(0); !IsStore(err, KeyAlreadyExists) {
		t.Fatalf("expected KeyAlreadyExists error, got %v", err)
	}

	for i := 0; i < 5; i++ {
		rim.Set(1, strconv.Itoa(i), i)
	}

	last, err := rim.GetLast(1)
	if err != nil {
		t.Fatal(err)
	}
	if last.(string) != "4" {
		t.Fatalf("last should be 4, not %s", last)
	}

	known := rim.Known()
	if known[0] != -1 || known[1] != 4 || known[2] != -1 {
		t.Fatalf("wrong known map: %v", known)
	}
}
