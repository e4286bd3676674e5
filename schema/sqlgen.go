package schema

import (
	"strings"

	"github.com/Konsultn-Engineering/opal/dialect"
)

// generateSQL renders the static per-type statement texts. The texts are
// part of the traits contract: the statement cache treats them as
// opaque constants and never rebuilds them.
func (c *Context) generateSQL(t *Traits) {
	d := c.dialect
	table := d.QuoteIdentifier(t.Table)

	// Persist: all insert columns, id included where the engine assigns
	// auto ids from a NULL id cell. Engines that cannot do that get the
	// auto pk omitted and returned instead; the id binding slot is
	// dropped with it so parameters stay aligned.
	t.PersistColumns = t.InsertColumns
	if t.ID.Auto && !d.AutoIDInInsert() {
		persist := make([]int, 0, len(t.InsertColumns)-1)
		for _, i := range t.InsertColumns {
			if t.Fields[i].PK {
				continue
			}
			persist = append(persist, i)
		}
		t.PersistColumns = persist
		t.PersistReturning = true
	}
	var cols, vals []string
	for n, i := range t.PersistColumns {
		cols = append(cols, d.QuoteIdentifier(t.Fields[i].Column))
		vals = append(vals, d.Placeholder(n+1))
	}
	t.PersistText = "INSERT INTO " + table +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")"
	if t.PersistReturning {
		t.PersistText += d.Returning(t.ID.Column)
	}

	// Find: every column, in select order, by id.
	var sel []string
	for _, f := range t.Fields {
		sel = append(sel, d.QuoteIdentifier(f.Column))
	}
	t.FindText = "SELECT " + strings.Join(sel, ", ") + " FROM " + table +
		" WHERE " + d.QuoteIdentifier(t.ID.Column) + " = " + d.Placeholder(1)

	// Update: parameter order matches the update binding layout — update
	// columns from the main image, then the id suffix from the id image,
	// then (optimistic only) the managed version column.
	n := 0
	var sets []string
	for _, i := range t.UpdateColumns {
		n++
		sets = append(sets, d.QuoteIdentifier(t.Fields[i].Column)+" = "+d.Placeholder(n))
	}
	if t.Optimistic() {
		ver := d.QuoteIdentifier(t.VersionField.Column)
		sets = append(sets, ver+" = "+ver+" + 1")
		n++
		where := d.QuoteIdentifier(t.ID.Column) + " = " + d.Placeholder(n)
		n++
		where += " AND " + ver + " = " + d.Placeholder(n)
		t.UpdateText = "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + where
	} else {
		n++
		t.UpdateText = "UPDATE " + table + " SET " + strings.Join(sets, ", ") +
			" WHERE " + d.QuoteIdentifier(t.ID.Column) + " = " + d.Placeholder(n)
	}

	// Erase: unconditional by id; optimistic erase adds the version check
	// and reports a conflict as zero rows affected.
	t.EraseText = "DELETE FROM " + table +
		" WHERE " + d.QuoteIdentifier(t.ID.Column) + " = " + d.Placeholder(1)
	if t.Optimistic() {
		t.OptimisticEraseText = t.EraseText +
			" AND " + d.QuoteIdentifier(t.VersionField.Column) + " = " + d.Placeholder(2)
	}

	t.CreateText = c.createTableSQL(t)
	for _, cm := range t.Containers {
		c.containerSQL(t, cm)
	}
}

func (c *Context) createTableSQL(t *Traits) string {
	d := c.dialect
	var defs []string
	for _, f := range t.Fields {
		col := d.QuoteIdentifier(f.Column) + " "
		switch {
		case f.PK && f.Auto:
			col += d.AutoIncrement()
		case f.PK:
			col += d.ColumnType(f.Kind) + " PRIMARY KEY"
		case f.Version:
			// Managed column: absent from the insert binding, so the
			// engine must seed it.
			col += d.ColumnType(f.Kind) + " NOT NULL DEFAULT 1"
		default:
			col += d.ColumnType(f.Kind)
		}
		defs = append(defs, col)
	}
	return "CREATE TABLE IF NOT EXISTS " + d.QuoteIdentifier(t.Table) +
		" (" + strings.Join(defs, ", ") + ")"
}

func (c *Context) containerSQL(t *Traits, cm *ContainerMeta) {
	d := c.dialect
	table := d.QuoteIdentifier(cm.Table)
	objectID := d.QuoteIdentifier("object_id")
	idx := d.QuoteIdentifier("idx")
	value := d.QuoteIdentifier("value")

	cm.SelectText = "SELECT " + value + " FROM " + table +
		" WHERE " + objectID + " = " + d.Placeholder(1) + " ORDER BY " + idx
	cm.InsertText = "INSERT INTO " + table + " (" + objectID + ", " + idx + ", " + value +
		") VALUES (" + d.Placeholder(1) + ", " + d.Placeholder(2) + ", " + d.Placeholder(3) + ")"
	cm.DeleteText = "DELETE FROM " + table + " WHERE " + objectID + " = " + d.Placeholder(1)
	cm.CreateText = "CREATE TABLE IF NOT EXISTS " + table +
		" (" + objectID + " " + d.ColumnType(t.ID.Kind) + " NOT NULL, " +
		idx + " " + d.ColumnType(dialect.ColumnInteger) + " NOT NULL, " +
		value + " " + d.ColumnType(cm.Kind) + ")"
}
