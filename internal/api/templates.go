package api

import (
	"strings"

	apperrors "github.com/Shubham6444/host/internal/errors"
)

// fileTemplates are the starter bodies offered by the "new file" dialog.
var fileTemplates = map[string]string{
	"html": `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Document</title>
</head>
<body>

</body>
</html>
`,
	"css": `* {
    margin: 0;
    padding: 0;
    box-sizing: border-box;
}

body {
    font-family: sans-serif;
}
`,
	"js": `'use strict';

`,
	"json": "{\n}\n",
	"md":   "# Title\n\n",
	"txt":  "",
}

// templateBody returns the body for a named template. An empty name yields
// an empty body.
func templateBody(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	body, ok := fileTemplates[strings.ToLower(name)]
	if !ok {
		return "", apperrors.Newf(apperrors.KindInvalidArgument, "unknown template %q", name)
	}
	return body, nil
}
