package entity

// CheckKind identifies one of the three conformance checks run per procedure
type CheckKind string

const (
	CheckValue     CheckKind = "VALUE"
	CheckSizeClass CheckKind = "SIZE_CLASS"
	CheckPackage   CheckKind = "PACKAGE"
)

// CheckKinds lists the checks in evaluation order
var CheckKinds = []CheckKind{CheckValue, CheckSizeClass, CheckPackage}

// CheckStatus is the recorded outcome of one check
type CheckStatus string

const (
	CheckConforming   CheckStatus = "CONFORMING"
	CheckDivergent    CheckStatus = "DIVERGENT"
	CheckNoReference  CheckStatus = "NO_REFERENCE"
	CheckNotFound     CheckStatus = "NOT_FOUND"
	CheckInPackage    CheckStatus = "IN_PACKAGE"
	CheckOutOfPackage CheckStatus = "OUT_OF_PACKAGE"
	CheckError        CheckStatus = "ERROR"
)

// ProcedureState is the auditor's current decision on a procedure
type ProcedureState string

const (
	StatePending  ProcedureState = "PENDING"
	StateApproved ProcedureState = "APPROVED"
	StateRejected ProcedureState = "REJECTED"
)

// Decision is the outcome recorded on a ledger entry
type Decision string

const (
	DecisionApproved          Decision = "APPROVED"
	DecisionRejected          Decision = "REJECTED"
	DecisionPartiallyApproved Decision = "PARTIALLY_APPROVED"
)

// Counts reports whether the decision contributes to an auditor's savings ranking
func (d Decision) Counts() bool {
	return d == DecisionApproved || d == DecisionPartiallyApproved
}

// Valid reports whether d is a known decision
func (d Decision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionPartiallyApproved:
		return true
	}
	return false
}

// ApportionmentGeneral is the ledger type used when a decision had no snapshots
const ApportionmentGeneral = "GENERAL"

// Value sources
const (
	SourceContract       = "CONTRACT"
	SourceReferenceTable = "REFERENCE_TABLE"
	SourceBilled         = "BILLED"
)

// Contract status constants
const (
	ContractActive   = "ACTIVE"
	ContractInactive = "INACTIVE"
)

// Expense codes used to bucket guide subtotals
const (
	ExpenseDailies     = "01"
	ExpenseRentals     = "02" // fees and rentals, also the default bucket
	ExpenseMaterials   = "03"
	ExpenseMedications = "04"
	ExpenseDevices     = "05" // OPME
	ExpenseGases       = "06"
)
