package generation

import "z-webforge-api/internal/domain/entity"

// 基础脚手架：每个项目在功能生成前先具备的最小文件集。
// 通过 upsert 写入，重复应用不会产生重复路径。
var foundationFiles = []entity.FileOperation{
	{
		Verb:     entity.FileOpCreate,
		Path:     "index.html",
		FileType: entity.FileTypeMarkup,
		Content: []byte(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>App</title>
  <link rel="stylesheet" href="styles.css">
</head>
<body>
  <div id="app"></div>
  <script src="app.js"></script>
</body>
</html>
`),
	},
	{
		Verb:     entity.FileOpCreate,
		Path:     "styles.css",
		FileType: entity.FileTypeStyle,
		Content: []byte(`:root {
  font-family: system-ui, sans-serif;
}

body {
  margin: 0;
}
`),
	},
	{
		Verb:     entity.FileOpCreate,
		Path:     "app.js",
		FileType: entity.FileTypeScript,
		Content:  []byte("document.getElementById(\"app\").textContent = \"\";\n"),
	},
}
