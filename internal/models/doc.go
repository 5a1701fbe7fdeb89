// Package models defines the data types flowing through the dvdmaker
// pipeline: playlist and video metadata, downloaded and converted video
// files, and the chapter layout of an authored DVD.
//
// Types carry Validate methods instead of failing construction; the
// services validate at the boundaries where data enters the pipeline.
package models
