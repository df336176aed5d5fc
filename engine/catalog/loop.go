package catalog

func init() {
	schemaSources[KindLoop] = `{
		"type": "object",
		"required": ["inputPath", "operations"],
		"properties": {
			"inputPath": {"type": "string", "pattern": "^/workflow"},
			"operations": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
			"outputPath": {"type": "string", "pattern": "^/workflow/"}
		},
		"additionalProperties": false
	}`
}

func loopDescriptor() *Descriptor {
	return &Descriptor{
		Kind:          KindLoop,
		ControlFlow:   true,
		SkipResolve:   map[string]bool{"inputPath": true, "operations": true, "outputPath": true},
		OutputTypeFor: staticOutput(OutputArray),
	}
}

// LoopInput returns the path of the array the loop iterates.
func LoopInput(args map[string]any) string {
	s, _ := args["inputPath"].(string)
	return s
}

// LoopBody returns the operation IDs executed per iteration.
func LoopBody(args map[string]any) []string {
	return stringList(args["operations"])
}
