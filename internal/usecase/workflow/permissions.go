package workflow

// LevelChecker is the default PermissionChecker: a user holds a feature when
// their granted level for its key meets the required minimum.
type LevelChecker struct{}

// HasPermission reports whether the granted level for featureKey is at least
// minLevel
func (LevelChecker) HasPermission(userPermissions map[string]int, featureKey string, minLevel int) bool {
	return userPermissions[featureKey] >= minLevel
}
