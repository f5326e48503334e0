package main

// General API documentation for swaggo. Run `swag init -g cmd/artifyd/docs.go` to regenerate docs.
//
// @title           artifyd API
// @version         1.0
// @description     HTTP API for text-to-image and image-to-image diffusion generation.
//
// @contact.name   artifyd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
