package attribution

// Relabel maps every record to RoleDistinguished when its speaker is designated,
// RoleOther otherwise. Order and length are preserved.
func Relabel(records []AttributedRecord, designated string) []LabeledRecord {
	out := make([]LabeledRecord, len(records))
	for i, r := range records {
		role := RoleOther
		if r.Speaker == designated {
			role = RoleDistinguished
		}
		out[i] = LabeledRecord{Role: role, Text: r.Text}
	}
	return out
}
