package constants

// Application constants
const (
	// Application metadata
	AppName        = "tabsdc"
	AppDescription = "Statistical Disclosure Control Toolkit for Tabular Health Records"
	AppVersion     = "0.1.0"

	// Default configuration values
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	// Anonymization defaults
	DefaultK                    = 5
	DefaultL                    = 3
	DefaultT                    = 0.2
	DefaultSuppressionThreshold = 0.5

	// Differential privacy defaults
	DefaultEpsilon    = 1.0
	DefaultNoiseScale = 0.1
	DefaultSeed       = 42

	// Histogram defaults
	DefaultNumericBins = 10

	// Privacy budget defaults
	DefaultTotalBudget      = 1.0
	BudgetWarningThreshold  = 0.75
	BudgetCriticalThreshold = 0.9

	// Privacy level epsilon boundaries
	HighPrivacyEpsilonBound   = 1.0
	MediumPrivacyEpsilonBound = 5.0

	// Observability defaults
	DefaultMetricsPort = 9090
)

// Generalization labels
const (
	// Age bands
	AgeBandUnder30 = "18-29"
	AgeBand30To49  = "30-49"
	AgeBand50To69  = "50-69"
	AgeBand70Plus  = "70+"

	// Missing values
	UnknownLabel = "Unknown"

	// Rare categorical values
	WildcardLabel = "*"

	// Quartile labels for non-age numeric columns
	QuartileLow        = "Low"
	QuartileMediumLow  = "Medium-Low"
	QuartileMediumHigh = "Medium-High"
	QuartileHigh       = "High"
)

// Privacy level labels reported by budget analysis
const (
	PrivacyLevelHigh   = "High"
	PrivacyLevelMedium = "Medium"
	PrivacyLevelLow    = "Low"
)

// Column semantics recognized by the generalizer
const (
	SemanticsAge     = "age"
	SemanticsGeneric = "generic"
)
