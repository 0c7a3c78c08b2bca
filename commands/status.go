package commands

// True does nothing, successfully.
func True(Invocation) int { return 0 }

// False does nothing, unsuccessfully.
func False(Invocation) int { return 1 }

func init() {
	addCmd("true", True)
	addCmd(":", True)
	addCmd("false", False)
}
