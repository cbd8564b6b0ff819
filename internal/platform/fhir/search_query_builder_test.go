package fhir

import (
	"strings"
	"testing"
	"time"
)

func TestSearchQueryBasic(t *testing.T) {
	q := NewSearchQuery("patient", "id, birth_date")
	q.Add("active_id = $1", 1)
	q.OrderBy("birth_date ASC")

	sql := q.SQL()
	if !strings.HasPrefix(sql, "SELECT id, birth_date FROM patient WHERE 1=1 AND active_id = $1") {
		t.Errorf("unexpected SQL: %s", sql)
	}
	if !strings.HasSuffix(sql, "ORDER BY birth_date ASC") {
		t.Errorf("expected ORDER BY in data SQL: %s", sql)
	}
	if strings.Contains(sql, "LIMIT") {
		t.Errorf("unexpected LIMIT in data SQL: %s", sql)
	}
	if len(q.Args()) != 1 {
		t.Errorf("unexpected args %v", q.Args())
	}
}

func TestSearchQueryAddDateBounds(t *testing.T) {
	lower := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	upper := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("both sides", func(t *testing.T) {
		q := NewSearchQuery("patient", "id")
		q.AddDateBounds("birth_date", DateBounds{Lower: &lower, Upper: &upper})
		sql := q.SQL()
		if !strings.Contains(sql, "birth_date >= $1 AND birth_date < $2") {
			t.Errorf("unexpected SQL: %s", sql)
		}
		args := q.Args()
		if len(args) != 2 || args[0] != lower || args[1] != upper {
			t.Errorf("unexpected args: %v", args)
		}
	})

	t.Run("upper only after other clause", func(t *testing.T) {
		q := NewSearchQuery("patient", "id")
		q.Add("gender_id = $1", 2)
		q.AddDateBounds("birth_date", DateBounds{Upper: &upper})
		if !strings.Contains(q.SQL(), "birth_date < $2") {
			t.Errorf("unexpected SQL: %s", q.SQL())
		}
		if args := q.Args(); len(args) != 2 || args[1] != upper {
			t.Errorf("unexpected args: %v", args)
		}
	})

	t.Run("unbounded adds nothing", func(t *testing.T) {
		q := NewSearchQuery("patient", "id")
		q.AddDateBounds("birth_date", DateBounds{})
		if q.SQL() != "SELECT id FROM patient WHERE 1=1" {
			t.Errorf("unexpected SQL: %s", q.SQL())
		}
	})

	t.Run("empty range matches nothing", func(t *testing.T) {
		q := NewSearchQuery("patient", "id")
		q.AddDateBounds("birth_date", DateBounds{Lower: &upper, Upper: &lower})
		if !strings.Contains(q.SQL(), "AND FALSE") || len(q.Args()) != 0 {
			t.Errorf("unexpected SQL: %s args %v", q.SQL(), q.Args())
		}
	})
}
