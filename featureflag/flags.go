package featureflag

type Flag string

const (
	FlagDisableInPlaceUpdate Flag = "DISABLE_IN_PLACE_UPDATE"
	FlagDisableRootShrink    Flag = "DISABLE_ROOT_SHRINK"
	FlagDisableDebugIndex    Flag = "DISABLE_DEBUG_INDEX"
	FlagDisableHoverRecords  Flag = "DISABLE_HOVER_RECORDS"
)
