package iso8583

// Dictionary is the immutable, per-MTI field table (spec.md §4.2). It
// is built once at startup and shared freely across connections and
// goroutines — nothing here mutates after NewDictionary returns.
type Dictionary struct {
	templates    map[string]FieldTable
	composite127 FieldTable
}

// commonFinancialFields is the field set shared by every financial and
// reversal MTI template (0200/0210/0231/0420/0430): every field the
// system may read or write per spec.md §4.2, plus field 55 (EMV data)
// and field 62 (mini-statement alternate slot) which spec.md §4.4/§4.5
// reference but spec.md §4.2's table does not separately enumerate.
func commonFinancialFields() FieldTable {
	return FieldTable{
		2:   {Number: 2, Name: "PAN", Type: LLVAR, Length: 19},
		3:   {Number: 3, Name: "ProcessingCode", Type: NUMERIC, Length: 6},
		4:   {Number: 4, Name: "Amount", Type: AMOUNT, Length: 12},
		7:   {Number: 7, Name: "TransmissionDate", Type: DATE10, Length: 10},
		11:  {Number: 11, Name: "STAN", Type: NUMERIC, Length: 6},
		12:  {Number: 12, Name: "LocalTime", Type: TIME, Length: 6},
		13:  {Number: 13, Name: "LocalDate", Type: DATE4, Length: 4},
		32:  {Number: 32, Name: "AcquiringInstitutionId", Type: LLVAR, Length: 11},
		37:  {Number: 37, Name: "RRN", Type: ALPHA, Length: 12},
		38:  {Number: 38, Name: "AuthCode", Type: ALPHA, Length: 6},
		39:  {Number: 39, Name: "ResponseCode", Type: ALPHA, Length: 2},
		41:  {Number: 41, Name: "TerminalId", Type: ALPHA, Length: 8},
		42:  {Number: 42, Name: "MerchantId", Type: ALPHA, Length: 15},
		43:  {Number: 43, Name: "MerchantInfo", Type: ALPHA, Length: 40},
		44:  {Number: 44, Name: "AdditionalData", Type: LLVAR, Length: 25},
		48:  {Number: 48, Name: "AdditionalDataPrivate", Type: LLLVAR, Length: 999},
		49:  {Number: 49, Name: "Currency", Type: NUMERIC, Length: 3},
		54:  {Number: 54, Name: "AdditionalAmounts", Type: LLLVAR, Length: 120},
		55:  {Number: 55, Name: "EMVData", Type: LLLBIN, Length: 999},
		62:  {Number: 62, Name: "MiniStatementAlt", Type: LLLVAR, Length: 999},
		64:  {Number: 64, Name: "MAC", Type: BINARY, Length: 8},
		70:  {Number: 70, Name: "NetworkManagementCode", Type: NUMERIC, Length: 3},
		102: {Number: 102, Name: "FromAccount", Type: LLVAR, Length: 28},
		103: {Number: 103, Name: "ToAccount", Type: LLVAR, Length: 28},
		123: {Number: 123, Name: "PrivateData", Type: LLLVAR, Length: 999},
		127: {Number: 127, Name: "Composite127", Type: LLLVAR, Length: 999, Composite: true},
	}
}

// networkManagementFields is the field set for 0800/0810 (spec.md
// §4.8: echo messages draw their values entirely from the request).
func networkManagementFields() FieldTable {
	return FieldTable{
		7:  {Number: 7, Name: "TransmissionDate", Type: DATE10, Length: 10},
		11: {Number: 11, Name: "STAN", Type: NUMERIC, Length: 6},
		39: {Number: 39, Name: "ResponseCode", Type: ALPHA, Length: 2},
		70: {Number: 70, Name: "NetworkManagementCode", Type: NUMERIC, Length: 3},
	}
}

// composite127SubTable describes field 127's nested subfields. The
// Pride-Innovation source this spec distills does not enumerate the
// full private subfield set, only that subfields 22 and 25 are
// forbidden outbound; this dictionary defines a representative set
// sufficient to exercise nested parse/pack/strip symmetrically.
func composite127SubTable() FieldTable {
	return FieldTable{
		1:  {Number: 1, Name: "ReservedInfo", Type: ALPHA, Length: 8},
		2:  {Number: 2, Name: "OriginalData", Type: LLVAR, Length: 35},
		3:  {Number: 3, Name: "AdditionalTerminalInfo", Type: LLVAR, Length: 40},
		22: {Number: 22, Name: "PosEntryMode", Type: NUMERIC, Length: 3},
		25: {Number: 25, Name: "PosConditionCode", Type: NUMERIC, Length: 2},
	}
}

// NewDictionary builds the immutable dictionary for MTIs 0200, 0210,
// 0231, 0420, 0430, 0800, 0810 (spec.md §4.2).
func NewDictionary() *Dictionary {
	financial := commonFinancialFields()
	network := networkManagementFields()

	return &Dictionary{
		templates: map[string]FieldTable{
			"0200": financial,
			"0210": financial,
			"0231": financial,
			"0420": financial,
			"0430": financial,
			"0800": network,
			"0810": network,
		},
		composite127: composite127SubTable(),
	}
}

// Table returns the field table for mti, or false if the MTI is not
// recognized by this dictionary.
func (d *Dictionary) Table(mti string) (FieldTable, bool) {
	t, ok := d.templates[mti]
	return t, ok
}

// Composite127 returns the sub-dictionary used to parse/pack field
// 127's nested payload.
func (d *Dictionary) Composite127() FieldTable {
	return d.composite127
}
